package queue

var transitionMap = map[string][]Phase{
	"finish_load":   {PhaseLoading},
	"fail_load":     {PhaseLoading},
	"retry_load":    {PhaseError},
	"submit":        {PhaseReady, PhaseError},
	"finish_submit": {PhaseSubmitting},
}

func ValidTransition(action string, from Phase) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, phase := range allowed {
		if phase == from {
			return true
		}
	}
	return false
}
