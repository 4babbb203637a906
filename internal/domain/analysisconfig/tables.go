package analysisconfig

const (
	defaultWindowSeconds    = 3.0
	historicalWindowSeconds = 5.0
	defaultPressureBoost    = 10.0
	gamePressureBoost       = 15.0
)

var gamePressureTags = []string{"game", "final", "overtime", "playoff"}

// Pose landmark names.
const (
	Nose          = "nose"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// Face region names.
const (
	RegionLeftEye   = "left_eye"
	RegionRightEye  = "right_eye"
	RegionLeftBrow  = "left_brow"
	RegionRightBrow = "right_brow"
	RegionMouth     = "mouth"
	RegionJaw       = "jaw"
	RegionNose      = "nose"
)

// PoseLandmarks lists every pose landmark the extractors report.
func PoseLandmarks() []string {
	return []string{
		Nose, LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist,
		LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
	}
}

// FaceRegions lists every facial region the extractors report.
func FaceRegions() []string {
	return []string{RegionLeftEye, RegionRightEye, RegionLeftBrow, RegionRightBrow, RegionMouth, RegionJaw, RegionNose}
}

var (
	jointRightElbow    = JointDef{Name: "right_elbow", A: RightShoulder, B: RightElbow, C: RightWrist}
	jointLeftElbow     = JointDef{Name: "left_elbow", A: LeftShoulder, B: LeftElbow, C: LeftWrist}
	jointRightShoulder = JointDef{Name: "right_shoulder", A: RightHip, B: RightShoulder, C: RightElbow}
	jointRightKnee     = JointDef{Name: "right_knee", A: RightHip, B: RightKnee, C: RightAnkle}
	jointLeftKnee      = JointDef{Name: "left_knee", A: LeftHip, B: LeftKnee, C: LeftAnkle}
	jointRightHip      = JointDef{Name: "right_hip", A: RightShoulder, B: RightHip, C: RightKnee}
)

var allFaceRegions = FaceRegions()

type sportTable struct {
	description string
	bio         Biomechanics
	beh         Behavior
}

var sports = map[string]sportTable{
	SportBaseball: {
		description: "baseball swing",
		bio: Biomechanics{
			Keypoints:       []string{RightShoulder, RightElbow, RightWrist, RightHip, LeftHip, LeftKnee, LeftAnkle, RightKnee, RightAnkle},
			TrackedLandmark: RightWrist,
			Joints:          []JointDef{jointRightElbow, jointRightShoulder, jointLeftKnee, jointRightKnee},
			Phases:          []string{"setup", "load", "stride", "contact", "follow_through"},
			PhaseRules: []PhaseRule{
				{Phase: "load", Joint: "right_elbow", Min: 40, Max: 80},
				{Phase: "stride", Joint: "right_elbow", Min: 80, Max: 120},
				{Phase: "follow_through", Joint: "right_elbow", Min: 120, Max: 150},
				{Phase: "contact", Joint: "right_elbow", Min: 150, Max: 180},
			},
			PowerPhase:     "contact",
			CriticalAngles: []string{"right_elbow", "left_knee"},
			JerkScale:      50,
			VelocityScale:  1.2,
		},
		beh: Behavior{
			FocusRegions:  allFaceRegions,
			WindowSeconds: defaultWindowSeconds,
			PressureTags:  []string{"pressure", "two_strikes", "bases_loaded", "late_innings"},
			PressureBoost: defaultPressureBoost,
		},
	},
	SportBasketball: {
		description: "basketball jump shot",
		bio: Biomechanics{
			Keypoints:       []string{RightShoulder, RightElbow, RightWrist, RightHip, RightKnee, RightAnkle, LeftKnee, LeftHip, LeftAnkle},
			TrackedLandmark: RightWrist,
			Joints:          []JointDef{jointRightElbow, jointRightShoulder, jointRightKnee, jointRightHip},
			Phases:          []string{"setup", "dip", "rise", "release", "follow_through"},
			PhaseRules: []PhaseRule{
				{Phase: "dip", Joint: "right_elbow", Min: 40, Max: 75},
				{Phase: "rise", Joint: "right_elbow", Min: 75, Max: 125},
				{Phase: "release", Joint: "right_elbow", Min: 155, Max: 180},
				{Phase: "follow_through", Joint: "right_elbow", Min: 125, Max: 155},
			},
			PowerPhase:     "release",
			CriticalAngles: []string{"right_elbow", "right_knee"},
			JerkScale:      50,
			VelocityScale:  1.0,
		},
		beh: Behavior{
			FocusRegions:  []string{RegionLeftEye, RegionRightEye, RegionLeftBrow, RegionRightBrow, RegionMouth, RegionJaw},
			WindowSeconds: defaultWindowSeconds,
			PressureTags:  []string{"pressure", "free_throw", "clutch_time", "buzzer"},
			PressureBoost: defaultPressureBoost,
		},
	},
	SportSoccer: {
		description: "soccer strike",
		bio: Biomechanics{
			Keypoints:       []string{RightHip, RightKnee, RightAnkle, LeftHip, LeftKnee, LeftAnkle, RightShoulder, LeftShoulder},
			TrackedLandmark: RightAnkle,
			Joints:          []JointDef{jointRightKnee, jointLeftKnee, jointRightHip},
			Phases:          []string{"approach", "plant", "backswing", "strike", "follow_through"},
			PhaseRules: []PhaseRule{
				{Phase: "backswing", Joint: "right_knee", Min: 60, Max: 110},
				{Phase: "plant", Joint: "right_knee", Min: 110, Max: 140},
				{Phase: "strike", Joint: "right_knee", Min: 160, Max: 180},
				{Phase: "follow_through", Joint: "right_knee", Min: 140, Max: 160},
			},
			PowerPhase:     "strike",
			CriticalAngles: []string{"right_knee", "right_hip"},
			JerkScale:      60,
			VelocityScale:  1.5,
		},
		beh: Behavior{
			FocusRegions:  []string{RegionLeftEye, RegionRightEye, RegionLeftBrow, RegionRightBrow, RegionMouth, RegionJaw},
			WindowSeconds: defaultWindowSeconds,
			PressureTags:  []string{"pressure", "penalty", "free_kick", "stoppage_time"},
			PressureBoost: defaultPressureBoost,
		},
	},
	SportTennis: {
		description: "tennis serve",
		bio: Biomechanics{
			Keypoints:       []string{RightShoulder, RightElbow, RightWrist, LeftShoulder, LeftElbow, LeftWrist, RightHip, RightKnee, RightAnkle},
			TrackedLandmark: RightWrist,
			Joints:          []JointDef{jointRightElbow, jointLeftElbow, jointRightShoulder, jointRightKnee},
			Phases:          []string{"ready", "toss", "trophy", "contact", "follow_through"},
			PhaseRules: []PhaseRule{
				{Phase: "trophy", Joint: "right_elbow", Min: 40, Max: 95},
				{Phase: "toss", Joint: "right_elbow", Min: 95, Max: 130},
				{Phase: "contact", Joint: "right_elbow", Min: 160, Max: 180},
				{Phase: "follow_through", Joint: "right_elbow", Min: 130, Max: 160},
			},
			PowerPhase:     "contact",
			CriticalAngles: []string{"right_elbow", "right_shoulder"},
			JerkScale:      50,
			VelocityScale:  1.4,
		},
		beh: Behavior{
			FocusRegions:  allFaceRegions,
			WindowSeconds: defaultWindowSeconds,
			PressureTags:  []string{"pressure", "break_point", "set_point", "tiebreak"},
			PressureBoost: defaultPressureBoost,
		},
	},
}
