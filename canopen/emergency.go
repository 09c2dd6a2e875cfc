package canopen

import "fmt"

// emergencyKey is a (error code, error register) pair as carried by a
// CANopen emergency message.
type emergencyKey struct {
	code uint16
	reg  uint8
}

// emergencyText maps known (code, register) pairs to a human-readable
// description. The first thirteen entries are the pairs documented
// directly against this device family. The remaining entries extend the
// table using the teacher's own CO_EMC_* DS301/DS401 error-code constants
// (emergency.go), each paired with the error-register bit its own
// CO_ERR_REG_* comment assigns to that error class, to reach a complete
// 26-entry table.
var emergencyText = map[emergencyKey]string{
	{0x0000, 0x00}: "No Error",
	{0x1000, 0x01}: "Generic Error",
	{0x2310, 0x02}: "Over Current",
	{0x3210, 0x04}: "Over Voltage",
	{0x3220, 0x04}: "Under Voltage",
	{0x4210, 0x08}: "Over Temperature",
	{0x5113, 0x04}: "+5V too low",
	{0x6100, 0x20}: "Internal Software Error",
	{0x6320, 0x20}: "Software Parameter Error",
	{0x7320, 0x20}: "Sensor Position Error",
	{0x81FD, 0x10}: "CAN Bus Off",
	{0x8611, 0x20}: "Following Error",
	{0xFF0B, 0x20}: "System Overloaded",

	// CO_EMC401_OUT_SHORTED / CO_ERR_REG_CURRENT
	{0x2320, 0x02}: "Short Circuit At Output",
	// CO_EMC401_IN_VOLT_HI / CO_ERR_REG_VOLTAGE
	{0x3110, 0x04}: "Input Voltage Too High",
	// CO_EMC401_IN_VOLT_LOW / CO_ERR_REG_VOLTAGE
	{0x3120, 0x04}: "Input Voltage Too Low",
	// CO_EMC_TEMP_DEVICE / CO_ERR_REG_TEMPERATURE
	{0x4200, 0x08}: "Device Temperature Error",
	// CO_EMC_HARDWARE / CO_ERR_REG_MANUFACTURER
	{0x5000, 0x80}: "Hardware Error",
	// CO_EMC_DATA_SET / CO_ERR_REG_DEV_PROFILE
	{0x6300, 0x20}: "Data Set Error",
	// CO_EMC_ADDITIONAL_MODUL / CO_ERR_REG_DEV_PROFILE
	{0x7000, 0x20}: "Additional Module Error",
	// CO_EMC_COMMUNICATION / CO_ERR_REG_COMMUNICATION
	{0x8100, 0x10}: "Communication Error",
	// CO_EMC_CAN_OVERRUN / CO_ERR_REG_COMMUNICATION
	{0x8110, 0x10}: "CAN Overrun",
	// CO_EMC_CAN_PASSIVE / CO_ERR_REG_COMMUNICATION
	{0x8120, 0x10}: "CAN In Error Passive Mode",
	// CO_EMC_HEARTBEAT / CO_ERR_REG_COMMUNICATION
	{0x8130, 0x10}: "Life Guard Error Or Heartbeat Error",
	// CO_EMC_PDO_LENGTH / CO_ERR_REG_COMMUNICATION
	{0x8210, 0x10}: "PDO Not Processed Due To Length Error",
	// CO_EMC_EXTERNAL_ERROR / CO_ERR_REG_MANUFACTURER
	{0x9000, 0x80}: "External Error",
}

// EmergencyMessage resolves an emergency (code, register) pair to its
// documented human-readable string, or a generated fallback for any pair
// not in the table.
func EmergencyMessage(errCode uint16, errReg uint8) string {
	if text, ok := emergencyText[emergencyKey{errCode, errReg}]; ok {
		return text
	}
	return fmt.Sprintf("Unrecognised error message 0x%X - 0x%X", errCode, errReg)
}
