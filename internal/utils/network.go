package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// SenderIP returns the address of the party that sent the request.
// The provisioning backend usually sits behind a load balancer, so the first
// public address in X-Forwarded-For wins over X-Real-IP and RemoteAddr.
func SenderIP(c *gin.Context) string {
	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		var firstValid string
		for _, part := range strings.Split(forwarded, ",") {
			candidate := strings.TrimSpace(part)
			ip := net.ParseIP(candidate)
			if ip == nil {
				continue
			}
			if firstValid == "" {
				firstValid = candidate
			}
			if !ip.IsPrivate() && !ip.IsLoopback() {
				return candidate
			}
		}
		if firstValid != "" {
			return firstValid
		}
	}

	if realIP := strings.TrimSpace(c.Request.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
		return realIP
	}

	return c.ClientIP()
}

// UserAgent extracts the User-Agent header from the request
func UserAgent(c *gin.Context) string {
	ua := c.Request.UserAgent()
	if ua == "" {
		return "Unknown"
	}
	return ua
}
