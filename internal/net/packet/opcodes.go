package packet

// ProtocolVersion is sent in C_OPCODE_HELLO; the server refuses other versions.
const ProtocolVersion = 1

// Client (observer) → server opcodes.
const (
	C_OPCODE_HELLO byte = 1 // [S name][H version]
	C_OPCODE_ACK   byte = 2 // [DU seq]
	C_OPCODE_BYE   byte = 3
	C_OPCODE_NACK  byte = 4 // [DU seq] payload seq failed to decode; resend now
)

// Server → client opcodes. Every server payload carries [DU seq] right after
// the opcode; the observer acks that sequence number.
const (
	S_OPCODE_WELCOME      byte = 64 // [DU seq][S server name][H tick ms]
	S_OPCODE_DATABLOCK    byte = 65 // [DU seq] bits: count(8) {config}...
	S_OPCODE_GHOST_UPDATE byte = 66 // [DU seq] bits: count(16) {ghost}...
	S_OPCODE_WIND         byte = 67 // [DU seq][F x][F y][F z]
	S_OPCODE_DISCONNECT   byte = 68 // [DU seq][S reason]
)

// OpcodeName returns a readable name for logs.
func OpcodeName(op byte) string {
	switch op {
	case C_OPCODE_HELLO:
		return "C_HELLO"
	case C_OPCODE_ACK:
		return "C_ACK"
	case C_OPCODE_BYE:
		return "C_BYE"
	case C_OPCODE_NACK:
		return "C_NACK"
	case S_OPCODE_WELCOME:
		return "S_WELCOME"
	case S_OPCODE_DATABLOCK:
		return "S_DATABLOCK"
	case S_OPCODE_GHOST_UPDATE:
		return "S_GHOST_UPDATE"
	case S_OPCODE_WIND:
		return "S_WIND"
	case S_OPCODE_DISCONNECT:
		return "S_DISCONNECT"
	default:
		return "UNKNOWN"
	}
}
