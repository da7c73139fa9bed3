package rtltcp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CommandSize is the length of a command frame on the wire
const CommandSize = 5

var (
	ErrInvalidParamLength   = errors.New("command parameter must have exactly 4 bytes")
	ErrInvalidCommandLength = fmt.Errorf("command frame must have exactly %d bytes", CommandSize)
)

type CommandType uint8

const (
	SetFrequency           CommandType = 0x01
	SetSampleRate          CommandType = 0x02
	SetGainMode            CommandType = 0x03
	SetGain                CommandType = 0x04
	SetFrequencyCorrection CommandType = 0x05
	SetIfStage             CommandType = 0x06
	SetTestMode            CommandType = 0x07
	SetAgcMode             CommandType = 0x08
	SetDirectSampling      CommandType = 0x09
	SetOffsetTuning        CommandType = 0x0A
	SetRtlCrystal          CommandType = 0x0B
	SetTunerCrystal        CommandType = 0x0C
	SetTunerGainByIndex    CommandType = 0x0D
	SetTunerBandwidth      CommandType = 0x0E
	SetBiasTee             CommandType = 0x0F
	Invalid                CommandType = 0xFF
)

func (c CommandType) String() string {
	if name, ok := CommandTypeToName[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02x)", uint8(c))
}

var CommandTypeToName = map[CommandType]string{
	SetFrequency:           "SetFrequency",
	SetSampleRate:          "SetSampleRate",
	SetGainMode:            "SetGainMode",
	SetGain:                "SetGain",
	SetFrequencyCorrection: "SetFrequencyCorrection",
	SetIfStage:             "SetIfStage",
	SetTestMode:            "SetTestMode",
	SetAgcMode:             "SetAgcMode",
	SetDirectSampling:      "SetDirectSampling",
	SetOffsetTuning:        "SetOffsetTuning",
	SetRtlCrystal:          "SetRtlCrystal",
	SetTunerCrystal:        "SetTunerCrystal",
	SetTunerGainByIndex:    "SetTunerGainByIndex",
	SetTunerBandwidth:      "SetTunerBandwidth",
	SetBiasTee:             "SetBiasTee",
}

// Command is a single control frame. Param is stored in network byte order.
type Command struct {
	Type  CommandType
	Param [4]byte
}

// MakeCommand builds a command with value encoded big endian
func MakeCommand(t CommandType, value uint32) Command {
	cmd := Command{Type: t}
	binary.BigEndian.PutUint32(cmd.Param[:], value)
	return cmd
}

// MakeCommandLE builds a command from a host serialized little endian value
func MakeCommandLE(t CommandType, value []byte) (Command, error) {
	if len(value) != 4 {
		return Command{}, ErrInvalidParamLength
	}

	return Command{
		Type:  t,
		Param: [4]byte{value[3], value[2], value[1], value[0]},
	}, nil
}

// ParseCommand decodes a 5 byte frame received from a client
func ParseCommand(frame []byte) (Command, error) {
	if len(frame) != CommandSize {
		return Command{}, ErrInvalidCommandLength
	}

	cmd := Command{Type: CommandType(frame[0])}
	copy(cmd.Param[:], frame[1:])
	return cmd, nil
}

func (c Command) Uint32() uint32 {
	return binary.BigEndian.Uint32(c.Param[:])
}

// Bytes returns the wire frame
func (c Command) Bytes() []byte {
	frame := make([]byte, CommandSize)
	frame[0] = byte(c.Type)
	copy(frame[1:], c.Param[:])
	return frame
}

func (c Command) String() string {
	return fmt.Sprintf("%s(%d)", c.Type, c.Uint32())
}
