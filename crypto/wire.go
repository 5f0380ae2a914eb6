package crypto

import "encoding/binary"

// headerSize, per spec.md §4.5 wire layout:
// transformation_kind(4) + transformation_key_id(4) + session_id(4) + iv_suffix(8).
const headerSize = 20

// bodyLengthSize is fixed at 4 bytes little-endian, per spec.md §9
// Open Question 1: the original writes body_length using the
// platform-dependent native `long` width; this implementation fixes
// the width to 4-byte little-endian and documents the deviation here.
const bodyLengthSize = 4

// commonMACSize is the AES-GCM authentication tag size.
const commonMACSize = 16

// receiverMACCountSize mirrors bodyLengthSize: fixed 4-byte
// little-endian, not the original's native `long`.
const receiverMACCountSize = 4

// receiverMACEntrySize is one {key_id(4), mac(16)} tuple.
const receiverMACEntrySize = 4 + 16

type secureHeader struct {
	transformationKind  uint32
	transformationKeyID uint32
	sessionID           uint32
	ivSuffix            uint64
}

func (h secureHeader) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.transformationKind)
	binary.LittleEndian.PutUint32(buf[4:8], h.transformationKeyID)
	binary.LittleEndian.PutUint32(buf[8:12], h.sessionID)
	binary.LittleEndian.PutUint64(buf[12:20], h.ivSuffix)
	return buf
}

func unmarshalHeader(data []byte) (secureHeader, error) {
	if len(data) < headerSize {
		return secureHeader{}, newTransformError(Malformed, "frame shorter than header", nil)
	}
	return secureHeader{
		transformationKind:  binary.LittleEndian.Uint32(data[0:4]),
		transformationKeyID: binary.LittleEndian.Uint32(data[4:8]),
		sessionID:           binary.LittleEndian.Uint32(data[8:12]),
		ivSuffix:            binary.LittleEndian.Uint64(data[12:20]),
	}, nil
}

type receiverMAC struct {
	keyID uint32
	mac   [16]byte
}

// marshalPayloadFrame assembles a secure-payload frame: header ‖
// body_length ‖ body ‖ common_mac.
func marshalPayloadFrame(h secureHeader, body []byte, commonMAC [16]byte) []byte {
	out := make([]byte, 0, headerSize+bodyLengthSize+len(body)+commonMACSize)
	out = append(out, h.marshal()...)

	lenBuf := make([]byte, bodyLengthSize)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(body)))
	out = append(out, lenBuf...)
	out = append(out, body...)
	out = append(out, commonMAC[:]...)
	return out
}

// unmarshalPayloadFrame is the strict inverse of marshalPayloadFrame.
func unmarshalPayloadFrame(data []byte) (secureHeader, []byte, [16]byte, error) {
	h, err := unmarshalHeader(data)
	if err != nil {
		return secureHeader{}, nil, [16]byte{}, err
	}

	if len(data) < headerSize+bodyLengthSize {
		return secureHeader{}, nil, [16]byte{}, newTransformError(Malformed, "frame truncated before body_length", nil)
	}
	bodyLen := binary.LittleEndian.Uint32(data[headerSize : headerSize+bodyLengthSize])

	bodyStart := headerSize + bodyLengthSize
	bodyEnd := bodyStart + int(bodyLen)
	tagEnd := bodyEnd + commonMACSize
	if len(data) < tagEnd {
		return secureHeader{}, nil, [16]byte{}, newTransformError(Malformed, "frame truncated before common_mac", nil)
	}

	var mac [16]byte
	copy(mac[:], data[bodyEnd:tagEnd])
	body := make([]byte, bodyLen)
	copy(body, data[bodyStart:bodyEnd])

	return h, body, mac, nil
}

// marshalMessageFrame extends a payload frame with the receiver-MAC
// list: receiver_mac_count ‖ { key_id(4) ‖ mac(16) }*.
func marshalMessageFrame(h secureHeader, body []byte, commonMAC [16]byte, macs []receiverMAC) []byte {
	out := marshalPayloadFrame(h, body, commonMAC)

	countBuf := make([]byte, receiverMACCountSize)
	binary.LittleEndian.PutUint32(countBuf, uint32(len(macs)))
	out = append(out, countBuf...)

	for _, m := range macs {
		entry := make([]byte, receiverMACEntrySize)
		binary.LittleEndian.PutUint32(entry[0:4], m.keyID)
		copy(entry[4:20], m.mac[:])
		out = append(out, entry...)
	}
	return out
}

// unmarshalMessageFrame is the strict inverse of marshalMessageFrame.
func unmarshalMessageFrame(data []byte) (secureHeader, []byte, [16]byte, []receiverMAC, error) {
	h, body, mac, err := unmarshalPayloadFrame(data)
	if err != nil {
		return secureHeader{}, nil, [16]byte{}, nil, err
	}

	offset := headerSize + bodyLengthSize + len(body) + commonMACSize
	if len(data) < offset+receiverMACCountSize {
		return secureHeader{}, nil, [16]byte{}, nil, newTransformError(Malformed, "frame truncated before receiver_mac_count", nil)
	}
	count := binary.LittleEndian.Uint32(data[offset : offset+receiverMACCountSize])
	offset += receiverMACCountSize

	macs := make([]receiverMAC, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < offset+receiverMACEntrySize {
			return secureHeader{}, nil, [16]byte{}, nil, newTransformError(Malformed, "frame truncated within receiver-mac list", nil)
		}
		var rm receiverMAC
		rm.keyID = binary.LittleEndian.Uint32(data[offset : offset+4])
		copy(rm.mac[:], data[offset+4:offset+20])
		macs = append(macs, rm)
		offset += receiverMACEntrySize
	}

	return h, body, mac, macs, nil
}
