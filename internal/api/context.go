package api

import (
	"context"

	"github.com/org/vaultgate/pkg/models"
)

type contextKey string

const (
	ctxKeyCredential contextKey = "credential"
	ctxKeyRequestID  contextKey = "request_id"
	ctxKeyCallerMeta contextKey = "caller_meta"
)

// callerMeta is the network metadata captured at authentication time and
// carried into activity records.
type callerMeta struct {
	Addr      string
	UserAgent string
}

func withCredential(ctx context.Context, c *models.Credential) context.Context {
	return context.WithValue(ctx, ctxKeyCredential, c)
}

func credentialFromCtx(ctx context.Context) *models.Credential {
	c, _ := ctx.Value(ctxKeyCredential).(*models.Credential)
	return c
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func withCallerMeta(ctx context.Context, m callerMeta) context.Context {
	return context.WithValue(ctx, ctxKeyCallerMeta, m)
}

func callerMetaFromCtx(ctx context.Context) callerMeta {
	m, _ := ctx.Value(ctxKeyCallerMeta).(callerMeta)
	return m
}
