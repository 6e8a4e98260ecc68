package gatewaysrv

// WebSocket close codes used by the Gateway relay's handshake and
// pairing bridge state machines. 4000-4999 is the private-use range;
// 1000 is the standard normal-closure code.
const (
	CloseDisplaced        = 4000 // registering a second connection for the same device id
	CloseLegacyMissingID  = 4001 // deprecated ?device_id= path; unused, kept for the wire vocabulary
	CloseAuthFailed       = 4003 // bad signature, timeout, or malformed handshake frame
	CloseMalformedPairing = 4004 // pairing_request missing pairing_code or device_public_key
	CloseDesktopAbsent    = 4006 // pairing_request with no desktop connection to bridge to
	ClosePairingTimeout   = 4008 // pairing bridge caller wait (T_pair) elapsed unresolved
	CloseNormal           = 1000
)
