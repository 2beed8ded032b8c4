package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stremio-sos-go/pkg/config"
	"stremio-sos-go/pkg/extractors"
	"stremio-sos-go/pkg/httpclient"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/registry"
	"stremio-sos-go/pkg/signer"
	"stremio-sos-go/pkg/types"
)

func TestRegisterExtractors(t *testing.T) {
	log := logging.Discard()
	client := httpclient.New(&config.Config{HTTPTimeout: time.Second}, log)

	tests := []struct {
		name        string
		creds       signer.Credentials
		wantAPI     bool
		wantQuality bool
	}{
		{name: "anonymous", creds: signer.Credentials{}},
		{name: "premium", creds: signer.Credentials{User: "a", Pass: "b"}, wantAPI: true, wantQuality: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.NewExtractorRegistry()
			registerExtractors(reg, client, log, "https://resolver.example", tt.creds)

			page := reg.ForScope(types.ScopePage)
			if assert.Len(t, page, 2) {
				assert.Equal(t, "markup", page[0].Name())
				assert.Equal(t, "links", page[1].Name())
			}

			_, ok := reg.GetByName(extractors.APIExtractorName)
			assert.Equal(t, tt.wantAPI, ok)
			assert.Equal(t, tt.wantQuality, reg.HasScope(types.ScopeQuality))
		})
	}
}
