// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file classifies public API callers from the User-Agent descriptor into
// browser, API client or automated AI agent. The classification feeds request
// telemetry only; it never changes quotas or responses.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/boxquote/internal/domain"
)

const (
	ctxKeyCallerClass = "caller.class"
	ctxKeyCallerAgent = "caller.agent"
)

// agentSignatures maps lowercase User-Agent fragments of known automated
// agents to a short agent name. Order matters: the first match wins.
var agentSignatures = []struct{ fragment, name string }{
	{"chatgpt-user", "chatgpt"},
	{"gptbot", "gptbot"},
	{"oai-searchbot", "openai-search"},
	{"claudebot", "claude"},
	{"claude-web", "claude"},
	{"claude-user", "claude"},
	{"anthropic-ai", "anthropic"},
	{"perplexitybot", "perplexity"},
	{"perplexity-user", "perplexity"},
	{"google-extended", "gemini"},
	{"gemini", "gemini"},
	{"bard", "gemini"},
	{"ccbot", "commoncrawl"},
	{"cohere-ai", "cohere"},
	{"meta-externalagent", "meta"},
	{"bytespider", "bytedance"},
	{"youbot", "you"},
	{"amazonbot", "amazon"},
	{"applebot-extended", "apple"},
	{"duckassistbot", "duckduckgo"},
	{"mistralai-user", "mistral"},
}

// browserMarkers identify interactive browsers. Automated agents often embed
// these too, which is why agent signatures are checked first.
var browserMarkers = []string{"mozilla/", "applewebkit", "gecko/", "chrome/", "safari/", "firefox/", "edg/"}

var callerClasses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "api_caller_class_total",
	Help: "Public API requests by detected caller class.",
}, []string{"class", "agent"})

func init() {
	prometheus.MustRegister(callerClasses)
}

// ClassifyUserAgent returns the caller class for a User-Agent string and,
// for automated agents, the matched agent name.
func ClassifyUserAgent(ua string) (domain.CallerClass, string) {
	low := strings.ToLower(strings.TrimSpace(ua))
	if low == "" {
		return domain.CallerAPIClient, ""
	}
	for _, sig := range agentSignatures {
		if strings.Contains(low, sig.fragment) {
			return domain.CallerAIAgent, sig.name
		}
	}
	for _, m := range browserMarkers {
		if strings.Contains(low, m) {
			return domain.CallerBrowser, ""
		}
	}
	return domain.CallerAPIClient, ""
}

// ClassifyCaller stores the caller class and agent name in the Gin context.
func ClassifyCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		class, agent := ClassifyUserAgent(c.Request.UserAgent())
		c.Set(ctxKeyCallerClass, class)
		if agent != "" {
			c.Set(ctxKeyCallerAgent, agent)
		}
		callerClasses.WithLabelValues(string(class), agent).Inc()
		c.Next()
	}
}

// CallerFrom returns the classification stored by ClassifyCaller, computing
// it on the fly when the middleware did not run.
func CallerFrom(c *gin.Context) (domain.CallerClass, string) {
	if v, ok := c.Get(ctxKeyCallerClass); ok {
		if class, ok := v.(domain.CallerClass); ok {
			return class, c.GetString(ctxKeyCallerAgent)
		}
	}
	return ClassifyUserAgent(c.Request.UserAgent())
}
