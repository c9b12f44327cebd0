package observability

import (
	"context"

	"github.com/aretw0/strata/pkg/domain"
	"go.uber.org/zap"
)

// LogHooks returns lifecycle hooks that log every event on logger.
func LogHooks(logger *zap.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnGenerate: func(_ context.Context, e *domain.GenerateEvent) {
			if e.Err != nil {
				logger.Warn("generate failed",
					zap.String("task", e.TaskName),
					zap.String("target", e.Target),
					zap.Error(e.Err),
				)
				return
			}
			logger.Info("generate",
				zap.String("task", e.TaskName),
				zap.String("target", e.Target),
				zap.String("generation_id", e.Generation.ID),
				zap.Bool("cached", e.Generation.Cached),
				zap.Int("diagnostics", len(e.Generation.Diagnostics)),
				zap.Duration("total", e.Generation.Timing.Total),
			)
		},
		OnDiagnostic: func(_ context.Context, e *domain.DiagnosticEvent) {
			logger.Warn("render diagnostic",
				zap.String("task", e.TaskName),
				zap.String("level", string(e.Diagnostic.Level)),
				zap.String("kind", string(e.Diagnostic.Kind)),
				zap.Int64("rule_id", e.Diagnostic.RuleID),
				zap.String("rule", e.Diagnostic.RuleName),
				zap.String("message", e.Diagnostic.Message),
			)
		},
		OnValidate: func(_ context.Context, e *domain.ValidateEvent) {
			logger.Info("validate",
				zap.Bool("valid", e.Report.Valid),
				zap.Int("issues", e.Report.IssueCount()),
				zap.Int("errors", len(e.Report.Errors)),
			)
		},
	}
}

// Chain merges several hook sets; each callback fans out in argument order.
func Chain(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		if h.OnGenerate != nil {
			prev, next := out.OnGenerate, h.OnGenerate
			out.OnGenerate = func(ctx context.Context, e *domain.GenerateEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				next(ctx, e)
			}
		}
		if h.OnDiagnostic != nil {
			prev, next := out.OnDiagnostic, h.OnDiagnostic
			out.OnDiagnostic = func(ctx context.Context, e *domain.DiagnosticEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				next(ctx, e)
			}
		}
		if h.OnValidate != nil {
			prev, next := out.OnValidate, h.OnValidate
			out.OnValidate = func(ctx context.Context, e *domain.ValidateEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				next(ctx, e)
			}
		}
	}
	return out
}
