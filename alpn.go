package s2n

// SelectALPN implements RFC 7301 §3.2's server-preference negotiation:
// walk the server's list in order and return the first protocol also
// present in the client's offer. An empty client offer is not an error —
// the ALPN extension is simply omitted from ServerHello and the
// handshake proceeds unauthenticated-protocol (spec §8 scenario 3).
func SelectALPN(serverPreference, clientOffered []string) (string, bool) {
	if len(clientOffered) == 0 {
		return "", false
	}
	offered := make(map[string]bool, len(clientOffered))
	for _, p := range clientOffered {
		offered[p] = true
	}
	for _, want := range serverPreference {
		if offered[want] {
			return want, true
		}
	}
	return "", false
}
