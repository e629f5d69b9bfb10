package engine

// InputFrame is a normalized frame from an input receiver.
type InputFrame struct {
	UniverseID   int
	ChannelStart int // 1-based, inclusive
	Values       []byte
	SourceName   string
}

// MappedWrite is one resolved destination write produced by the mapper.
type MappedWrite struct {
	Kind     string // DstChannel, DstGlobalMaster, DstUniverseMaster
	Universe int
	Channel  int
	Value    byte
}

// ApplyMapping resolves an input frame against the active mapping table
// into destination writes. It is purely functional: output depends only
// on the frame and the table.
//
// With no enabled table every channel passes through unchanged. A listed
// source fans out to all of its rule destinations and never also passes
// through. Unlisted sources follow the table's unmapped behavior.
func ApplyMapping(frame InputFrame, table *MappingConfig) []MappedWrite {
	writes := make([]MappedWrite, 0, len(frame.Values))

	if table == nil || !table.Enabled {
		for i, v := range frame.Values {
			writes = append(writes, MappedWrite{
				Kind:     DstChannel,
				Universe: frame.UniverseID,
				Channel:  frame.ChannelStart + i,
				Value:    v,
			})
		}
		return writes
	}

	type srcKey struct{ universe, channel int }
	rulesBySrc := make(map[srcKey][]MappingRuleConfig, len(table.Rules))
	for _, rule := range table.Rules {
		key := srcKey{rule.SrcUniverse, rule.SrcChannel}
		rulesBySrc[key] = append(rulesBySrc[key], rule)
	}

	for i, v := range frame.Values {
		channel := frame.ChannelStart + i
		rules, mapped := rulesBySrc[srcKey{frame.UniverseID, channel}]
		if !mapped {
			if table.UnmappedBehavior != "ignore" {
				writes = append(writes, MappedWrite{
					Kind:     DstChannel,
					Universe: frame.UniverseID,
					Channel:  channel,
					Value:    v,
				})
			}
			continue
		}
		for _, rule := range rules {
			writes = append(writes, MappedWrite{
				Kind:     rule.DstKind,
				Universe: rule.DstUniverse,
				Channel:  rule.DstChannel,
				Value:    v,
			})
		}
	}
	return writes
}
