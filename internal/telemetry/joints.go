package telemetry

// jointSpec describes one entry of the canonical skeleton.
type jointSpec struct {
	name string
	dof  int
}

// The canonical 18-joint skeleton: four legs with hip/thigh/calf, a
// four-joint arm, and a pan/tilt head.
var skeleton = []jointSpec{
	{"fl_hip", 1}, {"fl_thigh", 1}, {"fl_calf", 1},
	{"fr_hip", 1}, {"fr_thigh", 1}, {"fr_calf", 1},
	{"rl_hip", 1}, {"rl_thigh", 1}, {"rl_calf", 1},
	{"rr_hip", 1}, {"rr_thigh", 1}, {"rr_calf", 1},
	{"arm_shoulder", 2}, {"arm_elbow", 1}, {"arm_wrist", 2}, {"arm_gripper", 1},
	{"head_pan", 1}, {"head_tilt", 1},
}

// JointCount is the fixed size of every robot's joint list.
const JointCount = 18

// NewJoints returns a fresh skeleton with all joints at rest.
func NewJoints() []Joint {
	joints := make([]Joint, len(skeleton))
	for i, spec := range skeleton {
		joints[i] = Joint{
			Name:     spec.name,
			DOF:      spec.dof,
			Position: make([]float64, spec.dof),
			Status:   JointOK,
		}
	}
	return joints
}
