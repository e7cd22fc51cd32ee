package stage

// Health is a stage's answer to a readiness probe, surfaced by /api/status.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

// Unhealthy marks name as not ready; detail says what is missing.
func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
