// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

// DebugPort is the typed DP/AP transaction layer (component C): it hides
// request-byte encoding, AP bank selection and posted-read sequencing
// behind plain ReadDP/WriteDP/ReadAP/WriteAP calls.
type DebugPort struct {
	eng *LineEngine

	apsel uint16 // AP index selected in DP.SELECT, 0 by default

	// lastBank/haveBank cache the last AP register bank selected via
	// DP.SELECT, so selectBank only re-writes it on an actual bank change.
	lastBank byte
	haveBank bool
}

func NewDebugPort(eng *LineEngine) *DebugPort {
	return &DebugPort{eng: eng}
}

func (d *DebugPort) ReadDP(addr byte) (uint32, error) {
	req := buildRequest(false, true, addr)
	var word uint32
	ack, err := d.eng.transact(req, &word, false)
	if err != nil {
		return 0, classifyAck(ack, err)
	}
	return word, nil
}

func (d *DebugPort) WriteDP(addr byte, value uint32) error {
	req := buildRequest(false, false, addr)
	v := value
	ack, err := d.eng.transact(req, &v, true)
	if err != nil {
		return classifyAck(ack, err)
	}
	return nil
}

// ReadAP issues a posted AP read: the AP transaction itself carries the
// *previous* AP read's result, so that value is discarded and this read's
// result is fetched via DP.RDBUFF; from the caller's point of view, AP
// reads behave synchronously.
func (d *DebugPort) ReadAP(addr byte) (uint32, error) {
	if err := d.selectBank(addr); err != nil {
		return 0, err
	}

	req := buildRequest(true, true, addr)
	var discard uint32
	ack, err := d.eng.transact(req, &discard, false)
	if err != nil {
		return 0, classifyAck(ack, err)
	}

	value, err := d.ReadDP(dpRDBUFF)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (d *DebugPort) WriteAP(addr byte, value uint32) error {
	if err := d.selectBank(addr); err != nil {
		return err
	}

	req := buildRequest(true, false, addr)
	v := value
	ack, err := d.eng.transact(req, &v, true)
	if err != nil {
		return classifyAck(ack, err)
	}
	return nil
}

// selectBank writes DP.SELECT with the bank containing addr and the
// cached APSEL, but only when addr's bank differs from the last one
// selected.
func (d *DebugPort) selectBank(addr byte) error {
	bank := addr & apBankMask
	if d.haveBank && bank == d.lastBank {
		return nil
	}

	selectValue := (uint32(d.apsel) << 24) | uint32(bank)
	if err := d.WriteDP(dpSELECT, selectValue); err != nil {
		return err
	}

	d.lastBank = bank
	d.haveBank = true
	return nil
}

func classifyAck(ack Ack, err error) error {
	return wrapErr("dap.transact", KindTargetConnect, err)
}
