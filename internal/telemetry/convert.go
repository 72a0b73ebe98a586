package telemetry

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// SelectColumns picks the columns to materialize from a discovered schema.
//
// A pattern equal to a rendered column name selects that column. Other
// patterns are path.Match globs over the rendered names, e.g. "1-*" or
// "*-pressure". Patterns carrying a '\' escape are names, never globs.
// Names that match no discovered column are parsed as signatures and
// kept, so a stale column list still yields placeholder columns. No
// patterns selects everything.
func SelectColumns(schema *Schema, patterns []string) ([]Signature, error) {
	if len(patterns) == 0 {
		return schema.Columns, nil
	}

	var out []Signature
	seen := make(map[Signature]struct{})
	add := func(s Signature) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	byName := make(map[string]Signature, len(schema.Columns))
	for _, c := range schema.Columns {
		byName[c.String()] = c
	}

	for _, p := range patterns {
		if sig, ok := byName[p]; ok {
			add(sig)
			continue
		}
		if strings.Contains(p, `\`) {
			sig, err := ParseSignature(p)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", p, err)
			}
			add(sig)
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("column pattern %q: %w", p, err)
		}
		hit := false
		for _, c := range schema.Columns {
			if ok, _ := path.Match(p, c.String()); ok {
				add(c)
				hit = true
			}
		}
		if hit || hasMeta(p) {
			continue
		}
		sig, err := ParseSignature(p)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", p, err)
		}
		add(sig)
	}
	return out, nil
}

func hasMeta(p string) bool {
	for _, r := range p {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// Convert runs both passes over src: discovery, column selection, then
// materialization checked against the discovered message count.
func Convert(ctx context.Context, src Source, patterns []string, opts Options) (*Schema, *Table, error) {
	schema, err := Discover(ctx, src, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	columns, err := SelectColumns(schema, patterns)
	if err != nil {
		return schema, nil, err
	}

	opts.ExpectedMessages = schema.Relevant
	table, err := Materialize(ctx, src, columns, opts)
	if err != nil {
		return schema, nil, fmt.Errorf("materialize: %w", err)
	}
	return schema, table, nil
}
