package migrate

import (
	"fmt"

	"github.com/hyperengineering/marquee/internal/schema"
)

// Plan is the ordered chain of stages from the empty store to the newest
// generation. Stage i produces generation i of the catalogue; its goose
// version is i+1, and goose version 0 is the empty store.
type Plan struct {
	stages []Stage
}

// NewPlan validates that stages form an unbroken ascending chain starting
// from the empty model.
func NewPlan(stages ...Stage) (*Plan, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("migrate: plan has no stages")
	}
	prev := schema.Empty()
	for i, st := range stages {
		if st.From.Version != prev.Version || st.From.IsEmpty() != prev.IsEmpty() {
			return nil, fmt.Errorf("migrate: stage %d (%s) does not start where stage %d ends", i, st.Name(), i-1)
		}
		if !prev.IsEmpty() && !prev.Version.Less(st.To.Version) {
			return nil, fmt.Errorf("migrate: stage %d (%s) does not advance the version", i, st.Name())
		}
		if st.Kind != KindLightweight && st.Kind != KindCustom {
			return nil, fmt.Errorf("migrate: stage %d (%s) has no kind", i, st.Name())
		}
		prev = st.To
	}
	return &Plan{stages: stages}, nil
}

// DefaultPlan is the shipped chain:
//
//	empty -> 1.0.0  lightweight (bootstrap)
//	1.0.0 -> 1.1.0  lightweight
//	1.1.0 -> 2.0.0  custom: compute sortable titles
//	2.0.0 -> 3.0.0  custom: export embedded cast, rebuild, reimport relationally
//	3.0.0 -> 3.1.0  lightweight
func DefaultPlan() *Plan {
	p, err := NewPlan(
		Lightweight(schema.Empty(), schema.Gen1()),
		Lightweight(schema.Gen1(), schema.Gen2()),
		Custom(schema.Gen2(), schema.Gen3(), nil, RecomputeSortableTitles),
		Custom(schema.Gen3(), schema.Gen4(), ExportEmbeddedCast, ImportRelational),
		Lightweight(schema.Gen4(), schema.Gen5()),
	)
	if err != nil {
		panic(err)
	}
	return p
}

// Stages returns the stages in order.
func (p *Plan) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Latest returns the model the plan ends at.
func (p *Plan) Latest() schema.Model {
	return p.stages[len(p.stages)-1].To
}

// Versions returns every version the plan can reach, oldest first.
func (p *Plan) Versions() []schema.Version {
	vs := make([]schema.Version, len(p.stages))
	for i, st := range p.stages {
		vs[i] = st.To.Version
	}
	return vs
}

// Ordinal returns the goose version of v.
func (p *Plan) Ordinal(v schema.Version) (int64, bool) {
	for i, st := range p.stages {
		if st.To.Version == v {
			return int64(i + 1), true
		}
	}
	return 0, false
}

// Model returns the generation a store at goose version ordinal has.
// Ordinal 0 is the empty model.
func (p *Plan) Model(ordinal int64) (schema.Model, bool) {
	switch {
	case ordinal == 0:
		return schema.Empty(), true
	case ordinal < 0 || ordinal > int64(len(p.stages)):
		return schema.Model{}, false
	}
	return p.stages[ordinal-1].To, true
}

// Lookup returns the model with version v.
func (p *Plan) Lookup(v schema.Version) (schema.Model, bool) {
	n, ok := p.Ordinal(v)
	if !ok {
		return schema.Model{}, false
	}
	return p.Model(n)
}
