package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/query"
	"github.com/roach88/restq/internal/queryir"
	"github.com/roach88/restq/internal/service"
)

// ResourceOptions holds the flags shared by the resource commands.
// --query, --data and --native take YAML or JSON.
type ResourceOptions struct {
	*RootOptions
	Query      string // query object, e.g. '{completed: false, $sort: {title: 1}}'
	Data       string // record, or a list of records for create
	Native     string // backend-native find args merged over the compiled query
	NoPaginate bool   // disable the resource's paginate default for this call
}

// resourceCall runs one call against a resource and returns what to print.
type resourceCall func(ctx context.Context, r *service.Resource, e *env) (any, error)

func newResourceCommand(rootOpts *RootOptions, use, short, long string, args cobra.PositionalArgs,
	flags func(cmd *cobra.Command, opts *ResourceOptions),
	run func(opts *ResourceOptions, args []string) (resourceCall, error)) *cobra.Command {
	opts := &ResourceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   opts.Verbose,
			}
			call, err := run(opts, args)
			if err != nil {
				_ = formatter.Error(ErrCodeBadInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, ErrCodeBadInput, err)
			}
			return runResource(cmd, formatter, opts, args[0], call)
		},
	}
	if flags != nil {
		flags(cmd, opts)
	}
	return cmd
}

// runResource opens the environment, builds the resource for model and
// prints the result of call. Service errors exit with code 1.
func runResource(cmd *cobra.Command, formatter *OutputFormatter, opts *ResourceOptions, model string, call resourceCall) (err error) {
	e, err := openEnv(opts.RootOptions)
	if err != nil {
		_ = formatter.Failure(err)
		return err
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "close", closeErr)
		}
	}()

	r, err := e.resource(model)
	if err != nil {
		_ = formatter.Failure(err)
		return WrapExitError(ExitCommandError, "resource "+model, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out, err := call(ctx, r, e)
	if err != nil {
		_ = formatter.Failure(err)
		return WrapExitError(ExitFailure, fmt.Sprintf("%s %s", cmd.Name(), model), err)
	}
	return formatter.Success(out)
}

// params builds service params from the --query, --native and
// --no-paginate flags.
func (o *ResourceOptions) params() (service.Params, error) {
	var p service.Params
	if o.Query != "" {
		q, err := parseObject("--query", o.Query)
		if err != nil {
			return p, err
		}
		p.Query = query.Object(q)
	}
	if o.Native != "" {
		var native queryir.FindArgs
		dec := yaml.NewDecoder(strings.NewReader(o.Native))
		dec.KnownFields(true)
		if err := dec.Decode(&native); err != nil {
			return p, fmt.Errorf("--native: %w", err)
		}
		p.Native = &native
	}
	if o.NoPaginate {
		p.Paginate = &query.Paginate{}
	}
	return p, nil
}

// record parses --data as a single record.
func (o *ResourceOptions) record() (ir.Record, error) {
	if o.Data == "" {
		return nil, fmt.Errorf("--data is required")
	}
	m, err := parseObject("--data", o.Data)
	if err != nil {
		return nil, err
	}
	return ir.Record(m), nil
}

// parseObject decodes s as a YAML (or JSON) mapping. A $sort mapping
// keeps the key order it was written in.
func parseObject(flag, s string) (map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", flag, err)
	}
	var v any
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		orderSort(root)
		if err := root.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", flag, err)
		}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a mapping, got %T", flag, v)
	}
	return m, nil
}

// orderSort rewrites a multi-key $sort mapping under root into the list
// form [{k1: d1}, {k2: d2}], which the compiler applies in order.
func orderSort(root *yaml.Node) {
	if root.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != query.KeySort {
			continue
		}
		terms := root.Content[i+1]
		if terms.Kind != yaml.MappingNode || len(terms.Content) <= 2 {
			return
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for j := 0; j+1 < len(terms.Content); j += 2 {
			seq.Content = append(seq.Content, &yaml.Node{
				Kind:    yaml.MappingNode,
				Tag:     "!!map",
				Content: []*yaml.Node{terms.Content[j], terms.Content[j+1]},
			})
		}
		root.Content[i+1] = seq
		return
	}
}

// parseRecords decodes s as a mapping or a list of mappings.
func parseRecords(flag, s string) (ir.Record, []ir.Record, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", flag, err)
	}
	switch t := v.(type) {
	case map[string]any:
		return ir.Record(t), nil, nil
	case []any:
		list := make([]ir.Record, len(t))
		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, nil, fmt.Errorf("%s[%d]: expected a mapping, got %T", flag, i, item)
			}
			list[i] = ir.Record(m)
		}
		return nil, list, nil
	default:
		return nil, nil, fmt.Errorf("%s: expected a mapping or a list, got %T", flag, v)
	}
}

// parseID converts a command-line id to the id field's type. Integer ids
// that do not parse are passed through as strings so the service reports
// them.
func parseID(f ir.FieldSpec, raw string) any {
	if f.Type == ir.TypeInt {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	}
	return raw
}

// optionalID returns the id argument at args[1], or nil.
func optionalID(r *service.Resource, e *env, args []string) any {
	if len(args) < 2 {
		return nil
	}
	return parseID(e.idField(r), args[1])
}

func addQueryFlags(cmd *cobra.Command, opts *ResourceOptions) {
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query object (YAML or JSON)")
	cmd.Flags().StringVar(&opts.Native, "native", "", "native find args (where/select/include/orderBy/skip/take)")
}

func addDataFlag(cmd *cobra.Command, opts *ResourceOptions) {
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "record data (YAML or JSON)")
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	return newResourceCommand(rootOpts,
		"find <model>",
		"Find records matching a query",
		`Find records of <model> matching --query.

With pagination configured for the resource the result is a page
{total, limit, skip, data}; otherwise it is a plain list. The keys of a
$sort object apply in the order they are written.

Examples:
  restq find todo -q '{completed: false, $sort: {title: 1}, $limit: 10}'
  restq find todo -q '{title: {$in: [a, b]}}' --no-paginate`,
		cobra.ExactArgs(1),
		func(cmd *cobra.Command, opts *ResourceOptions) {
			addQueryFlags(cmd, opts)
			cmd.Flags().BoolVar(&opts.NoPaginate, "no-paginate", false, "return every match as a plain list")
		},
		func(opts *ResourceOptions, args []string) (resourceCall, error) {
			p, err := opts.params()
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context, r *service.Resource, e *env) (any, error) {
				return r.Find(ctx, p)
			}, nil
		})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return newResourceCommand(rootOpts,
		"get <model> <id>",
		"Get one record by id",
		`Get the record of <model> with <id>. --query narrows the match; a record
outside it is NotFound.`,
		cobra.ExactArgs(2),
		addQueryFlags,
		func(opts *ResourceOptions, args []string) (resourceCall, error) {
			p, err := opts.params()
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context, r *service.Resource, e *env) (any, error) {
				return r.Get(ctx, optionalID(r, e, args), p)
			}, nil
		})
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return newResourceCommand(rootOpts,
		"create <model>",
		"Create one or more records",
		`Create a record of <model> from --data. A list creates every entry in one
transaction and requires multi to allow create.

Examples:
  restq create todo -d '{title: Buy milk, completed: false}'
  restq create todo -d '[{title: a, completed: false}, {title: b, completed: true}]'`,
		cobra.ExactArgs(1),
		func(cmd *cobra.Command, opts *ResourceOptions) {
			addDataFlag(cmd, opts)
			cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query object for $select/$eager")
		},
		func(opts *ResourceOptions, args []string) (resourceCall, error) {
			if opts.Data == "" {
				return nil, fmt.Errorf("--data is required")
			}
			one, many, err := parseRecords("--data", opts.Data)
			if err != nil {
				return nil, err
			}
			p, err := opts.params()
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context, r *service.Resource, e *env) (any, error) {
				if many != nil {
					return r.CreateMany(ctx, many, p)
				}
				return r.Create(ctx, one, p)
			}, nil
		})
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return newResourceCommand(rootOpts,
		"update <model> <id>",
		"Replace one record",
		`Replace the record of <model> with <id> by --data. Fields left out of
--data are cleared.`,
		cobra.RangeArgs(1, 2),
		func(cmd *cobra.Command, opts *ResourceOptions) {
			addDataFlag(cmd, opts)
			addQueryFlags(cmd, opts)
		},
		func(opts *ResourceOptions, args []string) (resourceCall, error) {
			data, err := opts.record()
			if err != nil {
				return nil, err
			}
			p, err := opts.params()
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context, r *service.Resource, e *env) (any, error) {
				return r.Update(ctx, optionalID(r, e, args), data, p)
			}, nil
		})
}

// NewPatchCommand creates the patch command.
func NewPatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newResourceCommand(rootOpts,
		"patch <model> [id]",
		"Merge data into one or many records",
		`Merge --data into the record of <model> with [id]. Without an id every
record matching --query is patched, which requires multi to allow patch.

Examples:
  restq patch todo 1 -d '{completed: true}'
  restq patch todo -d '{tag: done}' -q '{completed: true}'`,
		cobra.RangeArgs(1, 2),
		func(cmd *cobra.Command, opts *ResourceOptions) {
			addDataFlag(cmd, opts)
			addQueryFlags(cmd, opts)
		},
		func(opts *ResourceOptions, args []string) (resourceCall, error) {
			data, err := opts.record()
			if err != nil {
				return nil, err
			}
			p, err := opts.params()
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context, r *service.Resource, e *env) (any, error) {
				if len(args) < 2 {
					return r.PatchMany(ctx, data, p)
				}
				return r.Patch(ctx, optionalID(r, e, args), data, p)
			}, nil
		})
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return newResourceCommand(rootOpts,
		"remove <model> [id]",
		"Remove one or many records",
		`Remove the record of <model> with [id] and print it. Without an id every
record matching --query is removed, which requires multi to allow remove.`,
		cobra.RangeArgs(1, 2),
		addQueryFlags,
		func(opts *ResourceOptions, args []string) (resourceCall, error) {
			p, err := opts.params()
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context, r *service.Resource, e *env) (any, error) {
				if len(args) < 2 {
					return r.RemoveMany(ctx, p)
				}
				return r.Remove(ctx, optionalID(r, e, args), p)
			}, nil
		})
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	return newResourceCommand(rootOpts,
		"emit <model> <event>",
		"Publish a custom resource event",
		`Publish <event> for <model> with --data as payload. The event must be one
of the standard mutation events or listed in the resource's events.`,
		cobra.ExactArgs(2),
		addDataFlag,
		func(opts *ResourceOptions, args []string) (resourceCall, error) {
			var payload any
			if opts.Data != "" {
				if err := yaml.Unmarshal([]byte(opts.Data), &payload); err != nil {
					return nil, fmt.Errorf("--data: %w", err)
				}
			}
			return func(ctx context.Context, r *service.Resource, e *env) (any, error) {
				if err := r.Emit(ctx, args[1], payload); err != nil {
					return nil, err
				}
				return fmt.Sprintf("emitted %s.%s", r.Model(), args[1]), nil
			}, nil
		})
}
