package config

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicSpec is one parsed active-topic entry.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
}

const defaultReplicationFactor = 1

// ParseTopicSpecs parses "name:partitions[:replication]" entries.
func ParseTopicSpecs(entries []string) ([]TopicSpec, error) {
	specs := make([]TopicSpec, 0, len(entries))
	seen := make(map[string]bool)
	for _, entry := range entries {
		spec, err := parseTopicSpec(entry)
		if err != nil {
			return nil, err
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate topic %q in active_topics", spec.Name)
		}
		seen[spec.Name] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseTopicSpec(entry string) (TopicSpec, error) {
	parts := strings.Split(strings.TrimSpace(entry), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TopicSpec{}, fmt.Errorf("invalid topic spec %q: use name:partitions[:replication]", entry)
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return TopicSpec{}, fmt.Errorf("invalid topic spec %q: empty topic name", entry)
	}

	partitions, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil || partitions < 1 {
		return TopicSpec{}, fmt.Errorf("invalid topic spec %q: partitions must be a positive integer", entry)
	}

	replication := int64(defaultReplicationFactor)
	if len(parts) == 3 {
		replication, err = strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 16)
		if err != nil || replication < 1 {
			return TopicSpec{}, fmt.Errorf("invalid topic spec %q: replication must be a positive integer", entry)
		}
	}

	return TopicSpec{
		Name:              name,
		Partitions:        int32(partitions),
		ReplicationFactor: int16(replication),
	}, nil
}
