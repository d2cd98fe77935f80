package medcrypt

import (
	"testing"

	"github.com/hengadev/errsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2Params_Validate(t *testing.T) {
	valid := Argon2Params{Memory: 19456, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	tests := []struct {
		name    string
		mutate  func(p *Argon2Params)
		errKeys []string
	}{
		{name: "valid parameters", mutate: func(p *Argon2Params) {}},
		{
			name: "all parameters too low",
			mutate: func(p *Argon2Params) {
				*p = Argon2Params{Memory: 1000, Iterations: 1, SaltLength: 8, KeyLength: 16}
			},
			errKeys: []string{"memory", "iterations", "parallelism", "saltLength", "keyLength"},
		},
		{name: "memory too low", mutate: func(p *Argon2Params) { p.Memory = 1000 }, errKeys: []string{"memory"}},
		{name: "iterations too low", mutate: func(p *Argon2Params) { p.Iterations = 1 }, errKeys: []string{"iterations"}},
		{name: "parallelism too low", mutate: func(p *Argon2Params) { p.Parallelism = 0 }, errKeys: []string{"parallelism"}},
		{name: "salt length too low", mutate: func(p *Argon2Params) { p.SaltLength = 8 }, errKeys: []string{"saltLength"}},
		{name: "key length not 32", mutate: func(p *Argon2Params) { p.KeyLength = 64 }, errKeys: []string{"keyLength"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid
			tt.mutate(&params)
			err := params.Validate()

			if len(tt.errKeys) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			errs, ok := err.(errsx.Map)
			require.True(t, ok, "expected error to be of type errsx.Map")
			assert.Len(t, errs, len(tt.errKeys))
			for _, key := range tt.errKeys {
				assert.Contains(t, errs, key)
			}
		})
	}
}

func TestDefaultArgon2Params_AreValid(t *testing.T) {
	assert.NoError(t, DefaultArgon2Params().Validate())
}
