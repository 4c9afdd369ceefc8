// Config loading for the gridwatch CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend      = "backend"
	cfgKeyDBPath       = "db_path"
	cfgKeyURL          = "url"
	cfgKeyDebounceMS   = "debounce_ms"
	cfgKeyTable        = "table"
	cfgKeyTableName    = "table_name"
	cfgKeyPrimaryField = "primary_field"
	cfgKeyFields       = "fields"
	cfgKeyViews        = "views"

	backendSQLite    = "sqlite"
	backendWebsocket = "websocket"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# gridwatch configuration

# Backend selection: sqlite or websocket
backend: sqlite

# Database file for the sqlite backend (optional; overridable by --db)
# db_path:

# Websocket URL for the websocket backend (overridable by --url)
# url: ws://localhost:8080/grid

# Unload debounce in milliseconds (0 means the library default)
# debounce_ms: 500

# Table shape served by the backend
table: tbl-main
table_name: Main
primary_field: fld-name
fields:
  - fld-name
# views:
#   - viw-all
`

// config is the resolved CLI configuration.
type config struct {
	backendKind string
	dbPath      string
	url         string
	debounce    time.Duration
	schema      types.TableSchema
}

// loadConfig reads config.yaml from the resolved config directory using
// Viper. It creates the config directory and a default config.yaml on first
// run; a missing config.yaml is not an error.
func loadConfig(configDir string) (config, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return config{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return config{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, backendSQLite)
	v.SetDefault(cfgKeyTable, "tbl-main")
	v.SetDefault(cfgKeyTableName, "Main")
	v.SetDefault(cfgKeyPrimaryField, "fld-name")
	v.SetDefault(cfgKeyFields, []string{"fld-name"})
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config{}, fmt.Errorf("read config: %w", err)
		}
	}

	schema := types.TableSchema{
		TableID:        types.TableID(v.GetString(cfgKeyTable)),
		Name:           v.GetString(cfgKeyTableName),
		PrimaryFieldID: types.FieldID(v.GetString(cfgKeyPrimaryField)),
	}
	for _, f := range v.GetStringSlice(cfgKeyFields) {
		schema.FieldIDs = append(schema.FieldIDs, types.FieldID(f))
	}
	for _, viewID := range v.GetStringSlice(cfgKeyViews) {
		schema.ViewIDs = append(schema.ViewIDs, types.ViewID(viewID))
	}
	if !schema.HasField(schema.PrimaryFieldID) {
		return config{}, fmt.Errorf("primary field %s not in fields list", schema.PrimaryFieldID)
	}

	return config{
		backendKind: v.GetString(cfgKeyBackend),
		dbPath:      v.GetString(cfgKeyDBPath),
		url:         v.GetString(cfgKeyURL),
		debounce:    time.Duration(v.GetInt(cfgKeyDebounceMS)) * time.Millisecond,
		schema:      schema,
	}, nil
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
