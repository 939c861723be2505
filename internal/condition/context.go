package condition

// Context is the execution context condition expressions and structured
// comparisons resolve references against.
type Context struct {
	Globals      map[string]interface{}
	StepOutputs  map[string]interface{}
	StepStatuses map[string]string
}
