package tech

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/techs.yaml
var defaultTechs []byte

// LoadDefault builds the graph from the embedded tech tree
func LoadDefault() (*Graph, error) {
	return Parse(defaultTechs)
}

// LoadFile builds the graph from a YAML file
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tech file: %w", err)
	}
	return Parse(data)
}

// Parse builds the graph from YAML bytes
func Parse(data []byte) (*Graph, error) {
	var nodes []Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse tech data: %w", err)
	}
	return NewGraph(nodes)
}
