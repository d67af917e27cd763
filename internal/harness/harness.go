package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/restq/internal/compiler"
	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/events"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/query"
	"github.com/roach88/restq/internal/queryir"
	"github.com/roach88/restq/internal/service"
	"github.com/roach88/restq/internal/store"
	"github.com/roach88/restq/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against an in-memory store with sequential ids.
type Harness struct {
	store     *store.Store
	pub       *events.MemoryPublisher
	resources map[string]*service.Resource
	logger    *slog.Logger
	seq       int64
	traced    int // published events already in the trace
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Sequential ids make the trace reproducible.
//
// Execution flow:
// 1. Compile the schema and create a fresh in-memory database
// 2. Build one resource per model
// 3. Write the seed records
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions and capture the final state
func Run(scenario *Scenario) (*Result, error) {
	schema, err := loadSchema(scenario.Schema)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	st, err := store.Open("sqlite3", ":memory:", schema,
		store.WithIDGenerator(testutil.NewSequentialIDs("")),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:     st,
		pub:       &events.MemoryPublisher{},
		resources: make(map[string]*service.Resource),
		logger:    logger,
	}
	if err := h.buildResources(schema, scenario.Resources); err != nil {
		return nil, err
	}

	ctx := context.Background()

	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	if err := h.captureState(ctx, schema, result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}

	return result, nil
}

// loadSchema compiles and validates the CUE schema at path.
func loadSchema(path string) (ir.Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	schema, err := compiler.CompileSource(path, string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	if verrs := compiler.Validate(schema); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, e := range verrs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid schema: %s", strings.Join(msgs, "; "))
	}
	return schema, nil
}

// buildResources creates a resource for every model, applying the
// scenario's options where given.
func (h *Harness) buildResources(schema ir.Schema, configured []service.Options) error {
	byModel := make(map[string]service.Options, len(configured))
	for _, opts := range configured {
		byModel[opts.Model] = opts
	}

	for _, name := range schema.Names() {
		opts, ok := byModel[name]
		if !ok {
			opts = service.Options{Model: name}
		}
		delete(byModel, name)

		r, err := service.New(opts, h.store,
			service.WithPublisher(h.pub),
			service.WithLogger(h.logger),
		)
		if err != nil {
			return fmt.Errorf("resource %s: %w", name, err)
		}
		h.resources[name] = r
	}

	if len(byModel) > 0 {
		name := ir.SortedKeys(byModel)[0]
		return fmt.Errorf("resource %s: no model with name %s in schema", name, name)
	}
	return nil
}

// seed writes records straight to the store, model by model in name order.
func (h *Harness) seed(ctx context.Context, seed map[string][]map[string]any) error {
	for _, name := range ir.SortedKeys(seed) {
		mc, err := h.store.Model(name)
		if err != nil {
			return err
		}
		for i, rec := range seed[name] {
			if _, err := mc.Create(ctx, ir.Record(rec), queryir.Projection{}); err != nil {
				return fmt.Errorf("%s[%d]: %w", name, i, err)
			}
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Each step:
// 1. Calls the resource method named by the step
// 2. Adds the call and its outcome to the trace
// 3. Adds the events the call published to the trace
// 4. Checks the expect clause
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) {
	for i, step := range flow {
		out, err := h.call(ctx, step)

		outcome := "ok"
		if err != nil {
			outcome = string(errs.KindOf(err))
			if outcome == "" {
				outcome = "error"
			}
		}
		h.seq++
		result.AddCallTrace(step, outcome, traceValue(out), h.seq)

		for _, p := range h.pub.Events()[h.traced:] {
			h.seq++
			result.AddEventTrace(p.Event.Model, p.Event.Name, traceValue(p.Event.Data), h.seq)
			h.traced++
		}

		for _, msg := range checkExpect(step, out, err) {
			result.AddError(fmt.Sprintf("flow[%d] %s.%s: %s", i, step.Model, step.Call, msg))
		}

		h.logger.Info("flow step completed",
			"step", i,
			"model", step.Model,
			"call", step.Call,
			"outcome", outcome,
		)
	}
}

// call dispatches a step to its resource.
func (h *Harness) call(ctx context.Context, step Step) (any, error) {
	r, ok := h.resources[step.Model]
	if !ok {
		return nil, fmt.Errorf("no resource for model %q", step.Model)
	}
	p := service.Params{Query: query.Object(step.Query)}

	switch step.Call {
	case CallFind:
		return r.Find(ctx, p)
	case CallGet:
		return r.Get(ctx, step.ID, p)
	case CallCreate:
		if list, ok := step.Data.([]any); ok {
			records, err := toRecords(list)
			if err != nil {
				return nil, err
			}
			return r.CreateMany(ctx, records, p)
		}
		data, err := toRecord(step.Data)
		if err != nil {
			return nil, err
		}
		return r.Create(ctx, data, p)
	case CallUpdate:
		data, err := toRecord(step.Data)
		if err != nil {
			return nil, err
		}
		return r.Update(ctx, step.ID, data, p)
	case CallPatch:
		data, err := toRecord(step.Data)
		if err != nil {
			return nil, err
		}
		if step.ID == nil {
			return r.PatchMany(ctx, data, p)
		}
		return r.Patch(ctx, step.ID, data, p)
	case CallRemove:
		if step.ID == nil {
			return r.RemoveMany(ctx, p)
		}
		return r.Remove(ctx, step.ID, p)
	case CallEmit:
		return nil, r.Emit(ctx, step.Event, step.Data)
	default:
		return nil, fmt.Errorf("unknown call %q", step.Call)
	}
}

// captureState reads every record of every model into result.State.
func (h *Harness) captureState(ctx context.Context, schema ir.Schema, result *Result) error {
	for _, name := range schema.Names() {
		mc, err := h.store.Model(name)
		if err != nil {
			return err
		}
		records, err := mc.FindMany(ctx, queryir.FindArgs{})
		if err != nil {
			return err
		}
		result.State[name] = records
	}
	return nil
}

func toRecord(v any) (ir.Record, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("data must be a mapping, got %T", v)
	}
	return ir.Record(m), nil
}

func toRecords(list []any) ([]ir.Record, error) {
	out := make([]ir.Record, len(list))
	for i, v := range list {
		rec, err := toRecord(v)
		if err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
		out[i] = rec
	}
	return out, nil
}

// traceValue converts a call result to plain maps and lists: a page becomes
// its record list, or {total, skip, limit, data} when paginated.
func traceValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case *service.Page:
		if val == nil {
			return nil
		}
		data := traceValue(val.Data)
		if !val.Paginated {
			return data
		}
		return map[string]any{
			"total": val.Total,
			"skip":  val.Skip,
			"limit": val.Limit,
			"data":  data,
		}
	case ir.Record:
		if val == nil {
			return nil
		}
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = traceValue(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = traceValue(x)
		}
		return out
	case []ir.Record:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = traceValue(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = traceValue(x)
		}
		return out
	default:
		return v
	}
}

// checkExpect compares a call outcome with the step's expect clause.
// A step without one must succeed.
func checkExpect(step Step, out any, err error) []string {
	e := step.Expect
	if e == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if e.Error != "" {
		return checkError(e, err)
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	value := traceValue(out)
	records := value
	if m, ok := value.(map[string]any); ok {
		if data, paginated := m["data"]; paginated && isPage(out) {
			records = data
		}
	}

	if e.Result != nil && !matchResult(records, e.Result) {
		msgs = append(msgs, fmt.Sprintf("result mismatch: expected %v, got %v", e.Result, records))
	}
	if e.Count != nil {
		list, ok := records.([]any)
		if !ok {
			msgs = append(msgs, fmt.Sprintf("count: result is not a list (%T)", records))
		} else if len(list) != *e.Count {
			msgs = append(msgs, fmt.Sprintf("count: expected %d records, got %d", *e.Count, len(list)))
		}
	}
	if e.Total != nil {
		page, ok := out.(*service.Page)
		if !ok || !page.Paginated {
			msgs = append(msgs, "total: result is not a paginated page")
		} else if page.Total != *e.Total {
			msgs = append(msgs, fmt.Sprintf("total: expected %d, got %d", *e.Total, page.Total))
		}
	}
	return msgs
}

func isPage(v any) bool {
	p, ok := v.(*service.Page)
	return ok && p.Paginated
}

func checkError(e *ExpectClause, err error) []string {
	if err == nil {
		return []string{fmt.Sprintf("expected %s error, call succeeded", e.Error)}
	}
	kind := string(errs.KindOf(err))
	if kind != e.Error {
		return []string{fmt.Sprintf("expected %s error, got %v", e.Error, err)}
	}
	var msgs []string
	if e.Code != "" {
		if se, _ := errs.As(err); se == nil || se.Code != e.Code {
			msgs = append(msgs, fmt.Sprintf("expected error code %s, got %v", e.Code, err))
		}
	}
	if e.Message != "" && !strings.Contains(err.Error(), e.Message) {
		msgs = append(msgs, fmt.Sprintf("expected error message containing %q, got %q", e.Message, err.Error()))
	}
	return msgs
}

// matchResult matches records against the expected value: a mapping is a
// field subset of a single record, a list matches element-wise.
func matchResult(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		return matchArgs(actual, exp)
	case []any:
		list, ok := actual.([]any)
		if !ok || len(list) != len(exp) {
			return false
		}
		for i := range exp {
			if !matchResult(list[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		return valuesEqual(actual, expected)
	}
}
