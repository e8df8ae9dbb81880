package survey

// FormData accumulates the wizard's answers and is submitted as the body of
// the registration request. Slices keep selection order; hobbies, times and
// characteristics are treated as sets.
type FormData struct {
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	Nickname        string   `json:"nickname"`
	Langs           []string `json:"langs"`
	Country         string   `json:"country"`
	Hobbies         []string `json:"hobbies"`
	Times           []string `json:"times"`
	Characteristics []string `json:"characteristics"`
}

// NewFormData returns an empty form whose collections encode as [].
func NewFormData() FormData {
	return FormData{
		Langs:           []string{},
		Hobbies:         []string{},
		Times:           []string{},
		Characteristics: []string{},
	}
}

// Clone returns a deep copy.
func (f FormData) Clone() FormData {
	out := f
	out.Langs = append([]string{}, f.Langs...)
	out.Hobbies = append([]string{}, f.Hobbies...)
	out.Times = append([]string{}, f.Times...)
	out.Characteristics = append([]string{}, f.Characteristics...)
	return out
}

// Redacted is a copy safe to write to logs.
func (f FormData) Redacted() FormData {
	out := f.Clone()
	if out.Password != "" {
		out.Password = "[redacted]"
	}
	return out
}

func (f FormData) text(field TextField) string {
	switch field {
	case FieldNickname:
		return f.Nickname
	case FieldCountry:
		return f.Country
	}
	return ""
}

func (f *FormData) setText(field TextField, v string) bool {
	switch field {
	case FieldNickname:
		f.Nickname = v
	case FieldCountry:
		f.Country = v
	default:
		return false
	}
	return true
}

// toggle removes v when present and appends it otherwise.
func toggle(list []string, v string) []string {
	for i, item := range list {
		if item == v {
			out := make([]string, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...)
		}
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	return append(out, v)
}

func remove(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}

// toggleTrait applies the toggle rule to characteristics, first dropping the
// opposite side of v's pair so a pair never contributes both sides.
func toggleTrait(list []string, pairs []TraitPair, v string) ([]string, bool) {
	for _, p := range pairs {
		opposite, ok := p.Opposite(v)
		if !ok {
			continue
		}
		return toggle(remove(list, opposite), v), true
	}
	return list, false
}
