/*
actors.go - Actor display-name resolution for audit views

PURPOSE:
  Audit entries store the raw actor ID from the X-Actor-ID header. The
  user directory that maps IDs to names lives in another system, so the
  handler resolves names through this interface. The default
  implementation echoes the ID back, which keeps the audit endpoint
  useful without a directory wired in.
*/
package api

// ActorDirectory resolves an actor ID to a human-readable name.
type ActorDirectory interface {
	DisplayName(actorID string) string
}

// StaticActorDirectory resolves names from a fixed map, falling back
// to the raw ID.
type StaticActorDirectory map[string]string

func (d StaticActorDirectory) DisplayName(actorID string) string {
	if name, ok := d[actorID]; ok {
		return name
	}
	return actorID
}
