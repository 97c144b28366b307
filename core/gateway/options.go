package gateway

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultFramesPerSecond = 10
	DefaultFrameBurst      = 20
	DefaultOutboundBuffer  = 64
	DefaultMaxFrameBytes   = 10 << 20

	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 60 * time.Second
)

type GatewayOption func(*Gateway)

// WithFrameRate limits how many inbound frames a single connection may send.
func WithFrameRate(framesPerSecond float64, burst int) GatewayOption {
	return func(g *Gateway) {
		if framesPerSecond > 0 {
			g.frameRate = rate.Limit(framesPerSecond)
		}
		if burst > 0 {
			g.frameBurst = burst
		}
	}
}

// WithAllowedOrigins restricts which browser origins may open a connection.
// Without it the websocket default same-host check applies.
func WithAllowedOrigins(origins ...string) GatewayOption {
	return func(g *Gateway) {
		g.allowedOrigins = append(g.allowedOrigins, origins...)
	}
}

func WithOutboundBuffer(size int) GatewayOption {
	return func(g *Gateway) {
		if size > 0 {
			g.outboundBuffer = size
		}
	}
}

func WithMaxFrameBytes(limit int64) GatewayOption {
	return func(g *Gateway) {
		if limit > 0 {
			g.maxFrameBytes = limit
		}
	}
}

func WithKeepalive(pingInterval, readTimeout time.Duration) GatewayOption {
	return func(g *Gateway) {
		if pingInterval > 0 {
			g.pingInterval = pingInterval
		}
		if readTimeout > 0 {
			g.readTimeout = readTimeout
		}
	}
}

func WithWriteTimeout(timeout time.Duration) GatewayOption {
	return func(g *Gateway) {
		if timeout > 0 {
			g.writeTimeout = timeout
		}
	}
}
