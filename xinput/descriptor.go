package xinput

import "github.com/9names/xrecv/usb"

// Interface class identity of the wireless receiver. The host driver binds
// on these values.
const (
	classVendor         = 0xFF
	subclassXInput      = 0x5D
	protocolWireless    = 0x81
	protocolWirelessAux = 0x82
)

// USB identity of the Microsoft Xbox 360 Wireless Receiver.
const (
	VendorID  = 0x045E
	ProductID = 0x0719
)

const (
	interruptMaxPacket = 32

	// bInterval values per function, in frames.
	primaryInInterval  = 1
	primaryOutInterval = 8
	auxInInterval      = 2
	auxOutInterval     = 4

	vendorClassDescType = 0x22
)

// endpointPair holds the endpoint numbers (without direction bit) assigned
// to one logical function.
type endpointPair struct {
	in  uint8
	out uint8
}

// primaryClassDescriptor builds the vendor class descriptor payload the host
// driver expects after the primary function's endpoints. The layout is
// undocumented; the capacity fields and trailing marker triples are fixed.
func primaryClassDescriptor(ep endpointPair) []byte {
	return []byte{
		0x00, 0x01,
		// IN endpoint: type 1, length 3
		0x13, usb.DirIn | ep.in,
		0x1D, // IN data size advertised
		0x00,
		0x17, // IN data size used
		0x01, 0x02, 0x08,
		// OUT endpoint: type 1, length 3
		0x13, ep.out,
		0x0C, // OUT data size advertised
		0x00,
		0x0C, // OUT data size used
		0x01, 0x02, 0x08,
	}
}

// auxClassDescriptor is the shorter companion block for the auxiliary
// (headset/chat) function.
func auxClassDescriptor(ep endpointPair) []byte {
	return []byte{
		0x00, 0x01, 0x01,
		usb.DirIn | ep.in, 0x00, 0x40,
		0x01,
		ep.out, 0x20, 0x00,
	}
}

// buildDescriptor constructs the full receiver descriptor for the given
// number of controller slots. Each slot gets a primary function and, when
// withAux is set, a secondary one the host polls for headset data. Endpoint
// numbers are assigned sequentially per direction.
//
// Returns the descriptor plus the primary and aux endpoint assignments per
// slot (aux is nil when not requested).
func buildDescriptor(controllers int, withAux bool) (usb.Descriptor, []endpointPair, []endpointPair) {
	desc := usb.Descriptor{
		Device: usb.DeviceDescriptor{
			BcdUSB:             0x0200,
			BDeviceClass:       0xFF,
			BDeviceSubClass:    0xFF,
			BDeviceProtocol:    0xFF,
			BMaxPacketSize0:    0x40,
			IDVendor:           VendorID,
			IDProduct:          ProductID,
			BcdDevice:          0x0100,
			IManufacturer:      0x01,
			IProduct:           0x02,
			ISerialNumber:      0x03,
			BNumConfigurations: 0x01,
			Speed:              2, // full speed
		},
		Strings: map[uint8]string{
			0: "Љ", // LangID: en-US
			1: "Microsoft",
			2: "Xbox 360 Wireless Receiver",
			3: "FFFFFFFF",
		},
	}

	var (
		primary []endpointPair
		aux     []endpointPair
		ifNum   uint8
		epNum   uint8
	)

	nextPair := func() endpointPair {
		epNum++
		return endpointPair{in: epNum, out: epNum}
	}

	addFunction := func(protocol uint8, ep endpointPair, inInterval, outInterval uint8, classDesc []byte) {
		desc.Interfaces = append(desc.Interfaces, usb.InterfaceConfig{
			Descriptor: usb.InterfaceDescriptor{
				BInterfaceNumber:   ifNum,
				BNumEndpoints:      2,
				BInterfaceClass:    classVendor,
				BInterfaceSubClass: subclassXInput,
				BInterfaceProtocol: protocol,
			},
			Endpoints: []usb.EndpointDescriptor{
				{
					BEndpointAddress: usb.DirIn | ep.in,
					BMAttributes:     usb.EndpointAttrInterrupt,
					WMaxPacketSize:   interruptMaxPacket,
					BInterval:        inInterval,
				},
				{
					BEndpointAddress: ep.out,
					BMAttributes:     usb.EndpointAttrInterrupt,
					WMaxPacketSize:   interruptMaxPacket,
					BInterval:        outInterval,
				},
			},
			ClassDescriptors: []usb.ClassSpecificDescriptor{
				{DescriptorType: vendorClassDescType, Payload: classDesc},
			},
		})
		ifNum++
	}

	for i := 0; i < controllers; i++ {
		pep := nextPair()
		primary = append(primary, pep)
		addFunction(protocolWireless, pep, primaryInInterval, primaryOutInterval, primaryClassDescriptor(pep))

		if withAux {
			aep := nextPair()
			aux = append(aux, aep)
			addFunction(protocolWirelessAux, aep, auxInInterval, auxOutInterval, auxClassDescriptor(aep))
		}
	}

	return desc, primary, aux
}
