package world

import "slices"

// Observer 是已完成握手的觀察者連線。
type Observer struct {
	SessionID uint64
	Name      string
}

func (s *State) AddObserver(o *Observer) { s.observers[o.SessionID] = o }

func (s *State) RemoveObserver(sessionID uint64) *Observer {
	o, ok := s.observers[sessionID]
	if !ok {
		return nil
	}
	delete(s.observers, sessionID)
	return o
}

func (s *State) Observer(sessionID uint64) *Observer { return s.observers[sessionID] }

func (s *State) ObserverCount() int { return len(s.observers) }

// ObserverIDs returns the session ids of synced observers in order.
func (s *State) ObserverIDs() []uint64 {
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
