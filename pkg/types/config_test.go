package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "zero value is valid", cfg: Config{}},
		{name: "positive debounce is valid", cfg: Config{UnloadDebounce: 50 * time.Millisecond}},
		{name: "negative debounce rejected", cfg: Config{UnloadDebounce: -time.Millisecond}, wantErr: ErrDebounceInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEffectiveUnloadDebounce(t *testing.T) {
	assert.Equal(t, DefaultUnloadDebounce, Config{}.EffectiveUnloadDebounce())
	assert.Equal(t, 25*time.Millisecond, Config{UnloadDebounce: 25 * time.Millisecond}.EffectiveUnloadDebounce())
}
