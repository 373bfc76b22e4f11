package registry

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed protocols.yaml
var protocolsYAML []byte

type staticContract struct {
	Address string `yaml:"address"`
	Label   string `yaml:"label"`
	TypeTag string `yaml:"type_tag"`
}

type staticTable struct {
	Contracts       []staticContract `yaml:"contracts"`
	BridgeAddresses []string         `yaml:"bridge_addresses"`
}

// StaticEntry is a resolved §4.3 layer-1 hit.
type StaticEntry struct {
	Label   string
	TypeTag string
}

func loadStaticTable() (map[string]StaticEntry, map[string]bool, error) {
	var t staticTable
	if err := yaml.Unmarshal(protocolsYAML, &t); err != nil {
		return nil, nil, err
	}

	byAddr := make(map[string]StaticEntry, len(t.Contracts))
	for _, c := range t.Contracts {
		byAddr[strings.ToLower(c.Address)] = StaticEntry{Label: c.Label, TypeTag: c.TypeTag}
	}

	bridges := make(map[string]bool, len(t.BridgeAddresses))
	for _, a := range t.BridgeAddresses {
		bridges[strings.ToLower(a)] = true
	}
	return byAddr, bridges, nil
}
