package rtltcp

import (
	"encoding/binary"
	"fmt"
)

// DongleInfoSize is the length of the greeting sent by the server on connect
const DongleInfoSize = 12

var DongleMagic = [4]uint8{'R', 'T', 'L', '0'}

type DongleInfo struct {
	Magic          [4]uint8
	TunerType      TunerType
	TunerGainCount uint32
}

// ParseDongleInfo decodes the server greeting. It returns false when the
// header is too short to be parsed. A header with the wrong magic is parsed
// to the zero DongleInfo.
func ParseDongleInfo(header []byte) (DongleInfo, bool) {
	if len(header) < DongleInfoSize {
		return DongleInfo{}, false
	}

	var info DongleInfo
	copy(info.Magic[:], header[:4])
	if info.Magic != DongleMagic {
		return DongleInfo{}, true
	}

	info.TunerType = TunerType(binary.BigEndian.Uint32(header[4:8]))
	info.TunerGainCount = binary.BigEndian.Uint32(header[8:12])

	return info, true
}

func (d DongleInfo) Valid() bool {
	return d.Magic == DongleMagic
}

// Bytes serializes the greeting as sent by a server
func (d DongleInfo) Bytes() []byte {
	header := make([]byte, DongleInfoSize)
	copy(header[:4], d.Magic[:])
	binary.BigEndian.PutUint32(header[4:8], uint32(d.TunerType))
	binary.BigEndian.PutUint32(header[8:12], d.TunerGainCount)
	return header
}

func (d DongleInfo) String() string {
	return fmt.Sprintf("{Magic:%q Tuner:%s GainCount:%d}", d.Magic[:], d.TunerType, d.TunerGainCount)
}
