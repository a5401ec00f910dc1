// Package acl implements the minimal per-channel token gate this server
// supports: a channel either has no gate, in which case every client
// passes, or it names a set of acceptable tokens and a client must
// present at least one of them in its Authenticate token list. It does
// not implement rich ACL evaluation beyond per-channel token matching.
package acl

// Grants reports whether held (the tokens a client authenticated with)
// satisfies gate (the tokens a channel requires). An empty gate always
// grants access.
func Grants(gate, held []string) bool {
	if len(gate) == 0 {
		return true
	}
	for _, want := range gate {
		for _, have := range held {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Intersect filters channelIDs down to those whose gate (looked up via
// gateOf) is satisfied by held. Used by whisper-channel resolution to
// apply a slot's group token restriction across an expanded channel set.
func Intersect(channelIDs []uint32, gateOf func(uint32) []string, held []string) []uint32 {
	out := make([]uint32, 0, len(channelIDs))
	for _, id := range channelIDs {
		if Grants(gateOf(id), held) {
			out = append(out, id)
		}
	}
	return out
}
