package message

// Returns an array of options given an option code
func (m *CoAPMessage) GetOptions(id OptionCode) []*CoAPMessageOption {
	var opts []*CoAPMessageOption
	for _, val := range m.Options {
		if val.Code == id {
			opts = append(opts, val)
		}
	}
	return opts
}

// Returns the first option found for a given option code
func (m *CoAPMessage) GetOption(id OptionCode) *CoAPMessageOption {
	for _, val := range m.Options {
		if val.Code == id {
			return val
		}
	}
	return nil
}

func (m *CoAPMessage) GetOptionAsString(id OptionCode) (str string) {
	if opt := m.GetOption(id); opt != nil {
		return opt.StringValue()
	}
	return
}

// Attempts to return the string value of an Option
func (m *CoAPMessage) GetOptionsAsString(id OptionCode) (str []string) {
	opts := m.GetOptions(id)
	for _, o := range opts {
		str = append(str, o.StringValue())
	}
	return
}

// Add an Option to the message. If an option is not repeatable, it will replace
// any existing defined Option of the same type
func (m *CoAPMessage) AddOption(code OptionCode, value interface{}) {
	opt := NewOption(code, value)
	if !opt.IsRepeatableOption() {
		m.RemoveOptions(code)
	}
	m.Options = append(m.Options, opt)
}

// Add an array of Options to the message. If an option is not repeatable, it will replace
// any existing defined Option of the same type
func (m *CoAPMessage) AddOptions(opts []*CoAPMessageOption) {
	for _, opt := range opts {
		m.AddOption(opt.Code, opt.Value)
	}
}

// Copies the given list of options from another message to this one
func (m *CoAPMessage) CloneOptions(cm *CoAPMessage, opts ...OptionCode) {
	for _, opt := range opts {
		m.AddOptions(cm.GetOptions(opt))
	}
}

// Removes an Option
func (m *CoAPMessage) RemoveOptions(id OptionCode) {
	var opts []*CoAPMessageOption
	for _, opt := range m.Options {
		if opt.Code != id {
			opts = append(opts, opt)
		}
	}
	m.Options = opts
}
