package mapping

// Record is the external persisted shape of a mapping: enums by name, params
// as a flat key/value map. Durable Store implementations marshal through this
// at their boundary so the stored form stays stable while the in-memory form
// stays typed.
type Record struct {
	OwnerID    string            `json:"owner_id" yaml:"owner_id"`
	DeviceName string            `json:"device_name" yaml:"device_name"`
	Type       string            `json:"message_type" yaml:"message_type"`
	Channel    uint8             `json:"channel" yaml:"channel"`
	Number     uint8             `json:"number" yaml:"number"`
	Action     string            `json:"action" yaml:"action"`
	Params     map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Provenance string            `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// ToRecord serializes a mapping for persistence.
func (m Mapping) ToRecord() Record {
	return Record{
		OwnerID:    m.OwnerID,
		DeviceName: m.DeviceName,
		Type:       m.Type.String(),
		Channel:    m.Channel,
		Number:     m.Number,
		Action:     m.Action.String(),
		Params:     ParamsToMap(m.Params),
		Provenance: m.Provenance,
	}
}

// FromRecord deserializes a persisted mapping, validating enum names.
func FromRecord(r Record) (Mapping, error) {
	msgType, err := ParseMessageType(r.Type)
	if err != nil {
		return Mapping{}, err
	}
	action, err := ParseActionTag(r.Action)
	if err != nil {
		return Mapping{}, err
	}
	params, err := ParamsFromMap(action, r.Params)
	if err != nil {
		return Mapping{}, err
	}
	m := Mapping{
		OwnerID:    r.OwnerID,
		DeviceName: r.DeviceName,
		Type:       msgType,
		Channel:    r.Channel,
		Number:     r.Number,
		Action:     action,
		Params:     params,
		Provenance: r.Provenance,
	}
	if err := m.Validate(); err != nil {
		return Mapping{}, err
	}
	return m, nil
}
