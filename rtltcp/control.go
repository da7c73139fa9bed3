package rtltcp

// TunerParameters is the tuner state replayed to the server on Start
type TunerParameters struct {
	Frequency           int64
	FrequencyCorrection int32
	SampleRate          uint32
	RtlAgc              bool
	TunerAgc            bool
	TunerGainIndex      uint32
}

func boolParam(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// Commands returns the replay sequence for the current state
func (p TunerParameters) Commands() []Command {
	return []Command{
		MakeCommand(SetSampleRate, p.SampleRate),
		MakeCommand(SetFrequencyCorrection, uint32(p.FrequencyCorrection)),
		MakeCommand(SetFrequency, uint32(p.Frequency)),
		MakeCommand(SetAgcMode, boolParam(p.RtlAgc)),
		tunerAgcCommand(p.TunerAgc),
		MakeCommand(SetTunerGainByIndex, p.TunerGainIndex),
	}
}

// tunerAgcCommand maps tuner AGC to the gain mode command, where 0 is auto
// and 1 is manual.
func tunerAgcCommand(enabled bool) Command {
	return MakeCommand(SetGainMode, boolParam(!enabled))
}

// update applies fn to the parameters and sends cmd if connected
func (client *Client) update(fn func(p *TunerParameters), cmd Command) error {
	client.mtx.Lock()
	fn(&client.params)
	conn := client.conn
	client.mtx.Unlock()

	if conn == nil {
		return nil
	}

	return client.send(conn, cmd)
}

func (client *Client) GetParameters() TunerParameters {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	return client.params
}

func (client *Client) GetFrequency() int64 {
	return client.GetParameters().Frequency
}

func (client *Client) SetFrequency(frequency int64) error {
	return client.update(func(p *TunerParameters) {
		p.Frequency = frequency
	}, MakeCommand(SetFrequency, uint32(frequency)))
}

func (client *Client) GetFrequencyCorrection() int32 {
	return client.GetParameters().FrequencyCorrection
}

func (client *Client) SetFrequencyCorrection(ppm int32) error {
	return client.update(func(p *TunerParameters) {
		p.FrequencyCorrection = ppm
	}, MakeCommand(SetFrequencyCorrection, uint32(ppm)))
}

func (client *Client) GetSampleRate() uint32 {
	return client.GetParameters().SampleRate
}

func (client *Client) SetSampleRate(sampleRate uint32) error {
	return client.update(func(p *TunerParameters) {
		p.SampleRate = sampleRate
	}, MakeCommand(SetSampleRate, sampleRate))
}

func (client *Client) GetRtlAgc() bool {
	return client.GetParameters().RtlAgc
}

func (client *Client) SetRtlAgc(enabled bool) error {
	return client.update(func(p *TunerParameters) {
		p.RtlAgc = enabled
	}, MakeCommand(SetAgcMode, boolParam(enabled)))
}

func (client *Client) GetTunerAgc() bool {
	return client.GetParameters().TunerAgc
}

func (client *Client) SetTunerAgc(enabled bool) error {
	return client.update(func(p *TunerParameters) {
		p.TunerAgc = enabled
	}, tunerAgcCommand(enabled))
}

func (client *Client) GetTunerGainIndex() uint32 {
	return client.GetParameters().TunerGainIndex
}

func (client *Client) SetTunerGainIndex(index uint32) error {
	return client.update(func(p *TunerParameters) {
		p.TunerGainIndex = index
	}, MakeCommand(SetTunerGainByIndex, index))
}

// The following are sent as is and not replayed on Start.

// SetTunerGain sets the manual tuner gain in tenths of dB
func (client *Client) SetTunerGain(tenthsDb uint32) error {
	return client.SendCommand(MakeCommand(SetGain, tenthsDb))
}

// SetDirectSampling selects 0 = off, 1 = I branch, 2 = Q branch
func (client *Client) SetDirectSampling(mode uint32) error {
	return client.SendCommand(MakeCommand(SetDirectSampling, mode))
}

func (client *Client) SetOffsetTuning(enabled bool) error {
	return client.SendCommand(MakeCommand(SetOffsetTuning, boolParam(enabled)))
}

func (client *Client) SetBiasTee(enabled bool) error {
	return client.SendCommand(MakeCommand(SetBiasTee, boolParam(enabled)))
}
