package ipcbridge

import (
	"strconv"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/handshake"
	"github.com/kestrelio/ipcbridge/internal/objectid"
	"github.com/kestrelio/ipcbridge/internal/registry"
	"github.com/kestrelio/ipcbridge/internal/serializer"
)

// ControlObjectID is the fixed address of every Host's introspection
// object; a Client calls into it directly without a discovery round-trip.
func ControlObjectID() objectid.ID {
	return objectid.ID{
		SessionID:  constants.SessionIDHost,
		Generation: constants.ControlObjectGeneration,
		LocalID:    constants.ControlObjectLocalID,
	}
}

// ListRegistry calls the host's control object for a snapshot of every
// published remote object.
func (c *Client) ListRegistry() ([]RegistryEntry, error) {
	body, err := c.CallMethod(ControlObjectID(), constants.IfaceControl, constants.MethodControlListRegistry, nil)
	if err != nil {
		return nil, err
	}
	return UnmarshalRegistryList(body)
}

// ListSessions calls the host's control object for a snapshot of every
// connected peer.
func (c *Client) ListSessions() ([]SessionEntry, error) {
	body, err := c.CallMethod(ControlObjectID(), constants.IfaceControl, constants.MethodControlListSessions, nil)
	if err != nil {
		return nil, err
	}
	return UnmarshalSessionList(body)
}

// ListPlugins calls the host's control object for the set of currently
// loaded plugin paths.
func (c *Client) ListPlugins() ([]string, error) {
	body, err := c.CallMethod(ControlObjectID(), constants.IfaceControl, constants.MethodControlListPlugins, nil)
	if err != nil {
		return nil, err
	}
	return UnmarshalPluginList(body)
}

// RegistryEntry is the operator-facing view of one published remote
// object, returned by ListRegistry.
type RegistryEntry struct {
	ObjectID    string
	InterfaceID uint32
	Name        string
	Version     uint16
	SessionID   uint16
}

// SessionEntry is the operator-facing view of one connected peer,
// returned by ListSessions.
type SessionEntry struct {
	SessionID  uint16
	PID        uint32
	PluginName string
	Ready      bool
}

func marshalRegistryList(entries []registry.Info) []byte {
	w := serializer.NewWriter(64 * len(entries))
	w.WriteUint64(uint64(len(entries)))
	for _, e := range entries {
		w.WriteString(strconv.FormatUint(objectid.Encode(e.ObjectID), 10))
		w.WriteUint32(e.InterfaceID)
		w.WriteString(e.Name)
		w.WriteUint16(e.Version)
		w.WriteUint16(e.SessionID)
	}
	return w.Bytes()
}

// UnmarshalRegistryList decodes the response body of a ListRegistry call.
func UnmarshalRegistryList(body []byte) ([]RegistryEntry, error) {
	r := serializer.NewReader(body)
	n, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	out := make([]RegistryEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		objID, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		interfaceID, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		version, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		sessionID, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		out = append(out, RegistryEntry{
			ObjectID:    objID,
			InterfaceID: interfaceID,
			Name:        name,
			Version:     version,
			SessionID:   sessionID,
		})
	}
	return out, nil
}

func marshalSessionList(clients []handshake.ConnectedClient) []byte {
	w := serializer.NewWriter(32 * len(clients))
	w.WriteUint64(uint64(len(clients)))
	for _, c := range clients {
		w.WriteUint16(c.SessionID)
		w.WriteUint32(c.PID)
		w.WriteString(c.PluginName)
		w.WriteBool(c.IsReady)
	}
	return w.Bytes()
}

// UnmarshalSessionList decodes the response body of a ListSessions call.
func UnmarshalSessionList(body []byte) ([]SessionEntry, error) {
	r := serializer.NewReader(body)
	n, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	out := make([]SessionEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		sessionID, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		pid, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		pluginName, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		ready, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		out = append(out, SessionEntry{SessionID: sessionID, PID: pid, PluginName: pluginName, Ready: ready})
	}
	return out, nil
}

func marshalPluginList(paths []string) []byte {
	w := serializer.NewWriter(32 * len(paths))
	w.WriteUint64(uint64(len(paths)))
	for _, p := range paths {
		w.WriteString(p)
	}
	return w.Bytes()
}

// UnmarshalPluginList decodes the response body of a ListPlugins call.
func UnmarshalPluginList(body []byte) ([]string, error) {
	r := serializer.NewReader(body)
	n, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		p, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
