package models

// Clone returns a deep copy of the form so mutations on the copy never leak
// into the receiver.
func (f Form) Clone() Form {
	out := f
	if f.Questions != nil {
		out.Questions = make([]Question, len(f.Questions))
		for i, q := range f.Questions {
			out.Questions[i] = q.Clone()
		}
	}
	return out
}

func (q Question) Clone() Question {
	out := q
	if q.Options != nil {
		out.Options = make([]Option, len(q.Options))
		for i, o := range q.Options {
			out.Options[i] = o.Clone()
		}
	}
	return out
}

func (o Option) Clone() Option {
	out := o
	if o.Ratings != nil {
		out.Ratings = make(map[string]int, len(o.Ratings))
		for k, v := range o.Ratings {
			out.Ratings[k] = v
		}
	}
	return out
}
