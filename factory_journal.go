package dirty

import (
	"context"

	"github.com/goliatone/go-dirty/pkg/journal"
)

type journalEmitter = *journal.Emitter

type journalSettings struct {
	hooks  journal.Hooks
	cfg    journal.Config
	cfgSet bool
}

func (s journalSettings) build() journalEmitter {
	if len(s.hooks) == 0 {
		return nil
	}
	cfg := s.cfg
	if !s.cfgSet {
		cfg = journal.Config{Enabled: true}
	}
	return journal.NewEmitter(s.hooks, cfg)
}

// WithJournalHooks registers journal hooks. Registering at least one
// hook enables the journal with default configuration unless
// WithJournalConfig overrides it.
func WithJournalHooks(hooks ...journal.Hook) Option {
	return func(cfg *factoryConfig) {
		cfg.journal.hooks = append(cfg.journal.hooks, hooks...)
	}
}

// WithJournalConfig sets the journal configuration.
func WithJournalConfig(journalCfg journal.Config) Option {
	return func(cfg *factoryConfig) {
		cfg.journal.cfg = journalCfg
		cfg.journal.cfgSet = true
	}
}

func (f *Factory) emit(event journal.Event) {
	if f.emitter == nil {
		return
	}
	if err := f.emitter.Emit(context.Background(), event); err != nil {
		f.trace(TraceEvent{Op: "journal", Err: err})
	}
}

func (f *Factory) entityInput(s *entityState) journal.EventInput {
	return journal.EventInput{
		EntityType: typeName(s.Instance()),
		Token:      s.token.String(),
	}
}

func (f *Factory) emitTracked(s *entityState) {
	f.emit(journal.BuildEntityTrackedEvent(f.entityInput(s)))
}

func (f *Factory) emitModified(s *entityState, property string, dirtied bool) {
	input := f.entityInput(s)
	input.Property = property
	input.Dirty = dirtied
	f.emit(journal.BuildEntityModifiedEvent(input))
}

func (f *Factory) emitReverted(s *entityState) {
	f.emit(journal.BuildEntityRevertedEvent(f.entityInput(s)))
}

func (f *Factory) emitRefreshed(s *entityState) {
	f.emit(journal.BuildEntityRefreshedEvent(f.entityInput(s)))
}

func (f *Factory) emitReleased(st State) {
	input := journal.EventInput{}
	switch h := st.(type) {
	case *entityState:
		input = f.entityInput(h)
	case *containerState:
		input.EntityType = typeName(h.raw)
		input.Token = h.token.String()
	default:
		return
	}
	f.emit(journal.BuildEntityReleasedEvent(input))
}

func (f *Factory) emitClosed(count int) {
	f.emit(journal.BuildFactoryClosedEvent(journal.EventInput{}, count))
}
