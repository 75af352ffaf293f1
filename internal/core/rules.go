package core

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set. The
// rules re-check, against the proposed state, what the service already verifies
// before writing, so a store or caller that skips the service checks still cannot
// commit a broken state.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewPartBarcodeUniqueRule())
	engine.Register(NewPartAllocationUniqueRule())
	engine.Register(NewDesignQuotaRule())
	return engine
}
