package canopen

import "errors"

// Error kinds surfaced across the driver boundary, per the error handling
// design: SdoDispatchRejected and SdoTransactionFailed never reach here,
// they are handled inside the node/channel tick loop.
var (
	ErrTransportOpenFailed = errors.New("transport could not be opened")
	ErrSlotExhausted       = errors.New("no free channel slot")
	ErrUnknownDriver       = errors.New("no driver registered under that name")
	ErrDoubleOpen          = ErrSlotExhausted
)

// AbortCode is an SDO abort code as delivered by a transaction failure.
// Mirrors the teacher's CANopenError/COResult pattern of keeping the raw
// numeric code alongside a human-readable lookup rather than discarding it.
type AbortCode uint32

const (
	AbortToggleBit         AbortCode = 0x05030000
	AbortTimeout           AbortCode = 0x05040000
	AbortCommand           AbortCode = 0x05040001
	AbortInvalidBlockSize  AbortCode = 0x05040002
	AbortInvalidSequence   AbortCode = 0x05040003
	AbortCRC               AbortCode = 0x05040004
	AbortOutOfMemory       AbortCode = 0x05040005
	AbortUnsupportedAccess AbortCode = 0x06010000
	AbortWriteOnly         AbortCode = 0x06010001
	AbortReadOnly          AbortCode = 0x06010002
	AbortNotExist          AbortCode = 0x06020000
	AbortNoMap             AbortCode = 0x06040041
	AbortGeneral           AbortCode = 0x08000000
)

var abortCodeText = map[AbortCode]string{
	AbortToggleBit:         "toggle bit not alternated",
	AbortTimeout:           "SDO protocol timed out",
	AbortCommand:           "command specifier not valid or unknown",
	AbortInvalidBlockSize:  "invalid block size",
	AbortInvalidSequence:   "invalid sequence number",
	AbortCRC:               "CRC error",
	AbortOutOfMemory:       "out of memory",
	AbortUnsupportedAccess: "unsupported access to an object",
	AbortWriteOnly:         "attempt to read a write-only object",
	AbortReadOnly:          "attempt to write a read-only object",
	AbortNotExist:          "object does not exist in the object dictionary",
	AbortNoMap:             "object cannot be mapped to the PDO",
	AbortGeneral:           "general error",
}

// Error implements the standard error interface so an AbortCode can be
// logged or wrapped directly, the way the teacher's CANopenError does for
// its own low-level codes.
func (code AbortCode) Error() string {
	if text, ok := abortCodeText[code]; ok {
		return text
	}
	return "unrecognised SDO abort code"
}
