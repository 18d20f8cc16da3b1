package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/strokectl/internal/motion"
	"github.com/gin-gonic/gin"
)

const inputTimeout = 2 * time.Second

// pointerBody carries either a pre-normalized position or a surface y.
type pointerBody struct {
	Position *float64 `json:"position"`
	Y        *float64 `json:"y"`
}

type strokeBody struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type speedBody struct {
	MaxSpeed *float64 `json:"max_speed"`
}

type intervalBody struct {
	MS *int `json:"ms"`
}

// RegisterRoutes adds the pointer input and settings API.
func (c *Controller) RegisterRoutes(r gin.IRoutes) {
	r.POST("/pointer/down", c.pointer(c.PointerDown))
	r.POST("/pointer/move", c.pointer(c.PointerMove))
	r.POST("/pointer/up", func(g *gin.Context) {
		respond(g, withInput(g, c.PointerUp))
	})
	r.POST("/stop", func(g *gin.Context) {
		respond(g, withInput(g, c.Stop))
	})

	r.PUT("/settings/stroke", func(g *gin.Context) {
		var body strokeBody
		if err := g.ShouldBindJSON(&body); err != nil || (body.Min == nil && body.Max == nil) {
			g.JSON(http.StatusBadRequest, gin.H{"error": "min or max required"})
			return
		}
		ctx, cancel := context.WithTimeout(g.Request.Context(), inputTimeout)
		defer cancel()
		rng, err := c.SetStroke(ctx, body.Min, body.Max)
		if err != nil {
			respond(g, err)
			return
		}
		g.JSON(http.StatusOK, gin.H{"status": "ok", "stroke_range": rng})
	})

	r.PUT("/settings/speed", func(g *gin.Context) {
		var body speedBody
		if err := g.ShouldBindJSON(&body); err != nil || body.MaxSpeed == nil {
			g.JSON(http.StatusBadRequest, gin.H{"error": "max_speed required"})
			return
		}
		respond(g, withInput(g, func(ctx context.Context) error {
			return c.SetSpeedClamp(ctx, *body.MaxSpeed)
		}))
	})

	r.PUT("/settings/sample-interval", func(g *gin.Context) {
		var body intervalBody
		if err := g.ShouldBindJSON(&body); err != nil || body.MS == nil {
			g.JSON(http.StatusBadRequest, gin.H{"error": "ms required"})
			return
		}
		respond(g, withInput(g, func(ctx context.Context) error {
			return c.SetSampleInterval(ctx, time.Duration(*body.MS)*time.Millisecond)
		}))
	})
}

func (c *Controller) pointer(apply func(context.Context, float64) error) gin.HandlerFunc {
	return func(g *gin.Context) {
		var body pointerBody
		if err := g.ShouldBindJSON(&body); err != nil {
			g.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var pos float64
		switch {
		case body.Position != nil:
			pos = *body.Position
		case body.Y != nil:
			p, err := c.Normalize(*body.Y)
			if err != nil {
				respond(g, err)
				return
			}
			pos = p
		default:
			g.JSON(http.StatusBadRequest, gin.H{"error": "position or y required"})
			return
		}
		respond(g, withInput(g, func(ctx context.Context) error {
			return apply(ctx, pos)
		}))
	}
}

// withInput bounds how long a request waits on the event loop.
func withInput(g *gin.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(g.Request.Context(), inputTimeout)
	defer cancel()
	return fn(ctx)
}

func respond(g *gin.Context, err error) {
	switch {
	case err == nil:
		g.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, ErrNotRunning):
		g.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, motion.ErrInvalidSpeedClamp),
		errors.Is(err, motion.ErrInvalidStrokeRange),
		errors.Is(err, motion.ErrInvalidSampleInterval),
		errors.Is(err, motion.ErrInvalidSurface):
		g.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		g.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		g.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
