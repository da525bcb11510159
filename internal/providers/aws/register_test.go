package aws

import (
	"testing"

	"quota-exporter/internal/providers"
)

func TestDefaultServicesRegistered(t *testing.T) {
	for _, svc := range DefaultServices {
		if _, ok := providers.GetFactory(svc); !ok {
			t.Fatalf("service %s not registered", svc)
		}
	}
}
