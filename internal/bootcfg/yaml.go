package bootcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a site YAML descriptor (bootcfg/catten.yaml) and
// overlays it onto Default(), so a descriptor may omit any field it
// wants left at its default rather than repeating every tunable.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("bootcfg: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("bootcfg: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GoLiteral renders cfg as the `bootcfg.Config{...}` source literal
// cmd/cattenctl writes into the generated file the kernel image actually
// compiles; see package doc for why the YAML decoder itself never ships
// in the kernel binary.
func GoLiteral(cfg Config) string {
	return fmt.Sprintf(`bootcfg.Config{
	SchedulerTickSeconds:    %d,
	HeapInitialArenaBytes:   %d,
	DefaultStackPages:       %d,
	IPIMailboxQueueCapacity: %d,
	MailboxSendRetries:      %d,
}`,
		cfg.SchedulerTickSeconds,
		cfg.HeapInitialArenaBytes,
		cfg.DefaultStackPages,
		cfg.IPIMailboxQueueCapacity,
		cfg.MailboxSendRetries,
	)
}
