package telemetry

import "context"

// Schema is the result of a discovery pass.
type Schema struct {
	// Columns lists every signature in the log, in first-occurrence order.
	Columns []Signature `json:"columns"`
	// Messages counts every message the source delivered.
	Messages int `json:"messages"`
	// Relevant counts the messages on the selected channel prefix.
	Relevant int `json:"relevant"`
}

// Names returns the rendered column names in discovery order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.String()
	}
	return names
}

// Discover replays src once and collects the signatures present in it.
func Discover(ctx context.Context, src Source, opts Options) (*Schema, error) {
	deriver := NewDeriver(opts.fields())
	schema := &Schema{}
	seen := make(map[Signature]struct{})

	index := 0
	for msg, err := range src.Messages(ctx) {
		if err != nil {
			return nil, err
		}
		i := index
		index++
		schema.Messages++
		if !opts.relevant(msg) {
			continue
		}
		schema.Relevant++

		sigs, err := deriver.Derive(msg.Payload)
		if err != nil {
			if err := opts.fail(i, msg, err); err != nil {
				return nil, err
			}
			continue
		}
		for sig := range sigs {
			if _, ok := seen[sig]; ok {
				continue
			}
			seen[sig] = struct{}{}
			schema.Columns = append(schema.Columns, sig)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return schema, nil
}
