package params

type Channel int

const (
	AngleX Channel = iota
	AngleY
	AngleZ
	EyeBallX
	EyeBallY
	BodyAngleX
	BodyAngleY
	BodyAngleZ
	EyeLOpen
	EyeROpen
	MouthOpenY
	MouthForm
	ChannelCount
)

// Generation selects the parameter naming scheme an asset was authored with.
type Generation int

const (
	Legacy Generation = iota // PARAM_ANGLE_X
	Modern                   // ParamAngleX
	GenerationCount
)

var ChannelNames = [ChannelCount][GenerationCount]string{
	AngleX:     {"PARAM_ANGLE_X", "ParamAngleX"},
	AngleY:     {"PARAM_ANGLE_Y", "ParamAngleY"},
	AngleZ:     {"PARAM_ANGLE_Z", "ParamAngleZ"},
	EyeBallX:   {"PARAM_EYE_BALL_X", "ParamEyeBallX"},
	EyeBallY:   {"PARAM_EYE_BALL_Y", "ParamEyeBallY"},
	BodyAngleX: {"PARAM_BODY_ANGLE_X", "ParamBodyAngleX"},
	BodyAngleY: {"PARAM_BODY_ANGLE_Y", "ParamBodyAngleY"},
	BodyAngleZ: {"PARAM_BODY_ANGLE_Z", "ParamBodyAngleZ"},
	EyeLOpen:   {"PARAM_EYE_L_OPEN", "ParamEyeLOpen"},
	EyeROpen:   {"PARAM_EYE_R_OPEN", "ParamEyeROpen"},
	MouthOpenY: {"PARAM_MOUTH_OPEN_Y", "ParamMouthOpenY"},
	MouthForm:  {"PARAM_MOUTH_FORM", "ParamMouthForm"},
}

func (c Channel) Name(g Generation) string {
	if c < 0 || c >= ChannelCount || g < 0 || g >= GenerationCount {
		return ""
	}
	return ChannelNames[c][g]
}

func (c Channel) String() string {
	return c.Name(Modern)
}

func (c Channel) IsEye() bool {
	return c == EyeLOpen || c == EyeROpen
}

func ChannelFromName(name string) (Channel, Generation, bool) {
	for c := Channel(0); c < ChannelCount; c++ {
		for g := Generation(0); g < GenerationCount; g++ {
			if ChannelNames[c][g] == name {
				return c, g, true
			}
		}
	}
	return -1, -1, false
}

func ParseGeneration(s string) (Generation, bool) {
	switch s {
	case "legacy", "cubism2", "2":
		return Legacy, true
	case "modern", "cubism3", "3":
		return Modern, true
	}
	return -1, false
}

// Values holds one float per channel, indexed by Channel.
type Values [ChannelCount]float32

func (v *Values) Set(c Channel, value float32) {
	if c >= 0 && c < ChannelCount {
		v[c] = value
	}
}

func (v *Values) Get(c Channel) float32 {
	if c >= 0 && c < ChannelCount {
		return v[c]
	}
	return 0
}
