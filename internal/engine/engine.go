// Package engine is the in-process surface the host application calls: one
// request/response operation per auditor, plus the batch tracer and field
// propagation. It scopes every call to a company data directory, logs it,
// and records it in the run history.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-fs/recon-cli/internal/audit"
	"github.com/meridian-fs/recon-cli/internal/lineage"
	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/runlog"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

// ErrValidation covers empty or malformed request parameters.
var ErrValidation = errors.New("engine: invalid request")

// Engine executes reconciliation operations against one data root.
type Engine struct {
	store      recordstore.Store
	dataRoot   string
	thresholds audit.Thresholds
	templates  []schema.Template
	runs       runlog.Store // optional
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunLog records every operation in the given run history store.
func WithRunLog(s runlog.Store) Option {
	return func(e *Engine) { e.runs = s }
}

// WithThresholds overrides the default audit thresholds.
func WithThresholds(t audit.Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithTemplates adds templates beyond the builtins.
func WithTemplates(extra []schema.Template) Option {
	return func(e *Engine) { e.templates = extra }
}

// New builds an Engine over a record store and data root directory.
func New(store recordstore.Store, dataRoot string, opts ...Option) *Engine {
	e := &Engine{store: store, dataRoot: dataRoot}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Templates returns the templates available to this engine, extras first.
func (e *Engine) Templates() []schema.Template {
	return append(append([]schema.Template{}, e.templates...), schema.Builtins()...)
}

// LookupTemplate resolves a template by name.
func (e *Engine) LookupTemplate(name string) (schema.Template, bool) {
	return schema.Lookup(name, e.templates)
}

// dataDir resolves and validates the company's data directory. The company
// id becomes a path element, so anything that could escape the data root
// is rejected outright.
func (e *Engine) dataDir(company string) (string, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return "", eris.Wrap(ErrValidation, "company is required")
	}
	if strings.ContainsAny(company, `/\`) || strings.Contains(company, "..") {
		return "", eris.Wrapf(ErrValidation, "company %q", company)
	}
	return e.dataRoot + "/" + strings.ToLower(company), nil
}

func (e *Engine) record(ctx context.Context, company, kind, severity string, summary any, started time.Time) {
	if e.runs == nil {
		return
	}
	run := runlog.New(company, kind, severity, summary, time.Since(started))
	if err := e.runs.Record(ctx, run); err != nil {
		zap.L().Warn("run history write failed", zap.String("kind", kind), zap.Error(err))
	}
}

// ValidateGLBalances runs the GL balance audit.
func (e *Engine) ValidateGLBalances(ctx context.Context, company, accountFilter string) (*audit.GLBalanceResult, error) {
	dir, err := e.dataDir(company)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := audit.GLBalance(ctx, e.store, dir, company, audit.GLBalanceOptions{
		Account:    accountFilter,
		Thresholds: e.thresholds,
	})
	if err != nil {
		zap.L().Error("gl balance audit failed", zap.String("company", company), zap.Error(err))
		return nil, err
	}
	zap.L().Info("gl balance audit",
		zap.String("company", company),
		zap.Bool("balanced", res.Balanced),
		zap.Int("entries", res.Entries),
	)
	e.record(ctx, company, string(res.Kind), string(res.Severity), res, started)
	return res, nil
}

// AuditCheckGLMatching runs the check-to-GL matching audit.
func (e *Engine) AuditCheckGLMatching(ctx context.Context, company, accountFilter string, start, end time.Time) (*audit.MatchingResult, error) {
	dir, err := e.dataDir(company)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := audit.CheckGLMatching(ctx, e.store, dir, company, audit.MatchingOptions{
		Account:    accountFilter,
		Start:      start,
		End:        end,
		Thresholds: e.thresholds,
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("check matching audit",
		zap.String("company", company),
		zap.Bool("perfect", res.PerfectMatch),
	)
	e.record(ctx, company, string(res.Kind), string(res.Severity), res, started)
	return res, nil
}

// AuditDuplicateCIDCHEC runs the duplicate-key audit.
func (e *Engine) AuditDuplicateCIDCHEC(ctx context.Context, company string) (*audit.DuplicateResult, error) {
	dir, err := e.dataDir(company)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := audit.DuplicateCIDCHEC(ctx, e.store, dir, company, e.thresholds)
	if err != nil {
		return nil, err
	}
	e.record(ctx, company, string(res.Kind), string(res.Severity), res, started)
	return res, nil
}

// AuditVoidChecks runs the void verification audit.
func (e *Engine) AuditVoidChecks(ctx context.Context, company string) (*audit.VoidResult, error) {
	dir, err := e.dataDir(company)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := audit.VoidChecks(ctx, e.store, dir, company, e.thresholds)
	if err != nil {
		return nil, err
	}
	e.record(ctx, company, string(res.Kind), string(res.Severity), res, started)
	return res, nil
}

// AuditPayeeCIDVerification runs the payee identity audit.
func (e *Engine) AuditPayeeCIDVerification(ctx context.Context, company string) (*audit.PayeeResult, error) {
	dir, err := e.dataDir(company)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := audit.PayeeCIDVerification(ctx, e.store, dir, company, e.thresholds)
	if err != nil {
		return nil, err
	}
	e.record(ctx, company, string(res.Kind), string(res.Severity), res, started)
	return res, nil
}

// FollowBatchNumber traces a batch across the linked tables.
func (e *Engine) FollowBatchNumber(ctx context.Context, company, batch string) (*lineage.BatchLineage, error) {
	dir, err := e.dataDir(company)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(batch) == "" {
		return nil, eris.Wrap(ErrValidation, "batch id is required")
	}
	started := time.Now()
	lin, err := lineage.Follow(ctx, e.store, dir, company, batch)
	if err != nil {
		return nil, err
	}
	zap.L().Info("batch trace",
		zap.String("company", company),
		zap.String("batch", lin.Batch),
		zap.Int("records", lin.TotalRecords),
	)
	e.record(ctx, company, lineage.KindBatchLineage, "", lin, started)
	return lin, nil
}

// UpdateBatchFields propagates a field correction across a traced batch.
func (e *Engine) UpdateBatchFields(ctx context.Context, company, batch string, tpl schema.Template, newValue string, include []string) (*lineage.PropagationResult, error) {
	dir, err := e.dataDir(company)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(batch) == "" {
		return nil, eris.Wrap(ErrValidation, "batch id is required")
	}
	// Catalog-level validation is done when templates load; here only the
	// shape matters. Live-table drift is handled by per-table demotion
	// inside the propagation itself.
	switch tpl.Type {
	case recordstore.FieldDate, recordstore.FieldNumeric, recordstore.FieldText, recordstore.FieldLogical:
	default:
		return nil, eris.Wrapf(ErrValidation, "template type %q", tpl.Type)
	}
	if len(tpl.Fields) == 0 {
		return nil, eris.Wrap(ErrValidation, "template maps no tables")
	}
	if len(include) == 0 {
		return nil, eris.Wrap(ErrValidation, "no tables included")
	}
	started := time.Now()
	res, err := lineage.Propagate(ctx, e.store, dir, company, batch, tpl, newValue, include)
	if err != nil {
		return nil, err
	}
	zap.L().Info("field propagation",
		zap.String("company", company),
		zap.String("batch", batch),
		zap.String("template", tpl.Name),
		zap.Int("rows", res.TotalUpdated),
		zap.Bool("success", res.Success),
	)
	e.record(ctx, company, lineage.KindPropagation, "", res, started)
	return res, nil
}
