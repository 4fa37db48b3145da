package exercise

type Test struct {
	ID                       Type     `json:"id"`
	Title                    string   `json:"title"`
	Icon                     string   `json:"icon"`
	DurationSeconds          int      `json:"durationSeconds"`
	RequiresFaceVerification bool     `json:"requiresFaceVerification"`
	Instructions             []string `json:"instructions"`
	Tips                     []string `json:"tips"`
}

var tests = map[Type]Test{
	TypeVerticalJump: {
		Title: "Vertical Jump Test",
		Icon:  "🦘",
		Instructions: []string{
			"Stand with your feet shoulder-width apart",
			"Position yourself sideways to the camera (about 2 meters away)",
			"Keep your hands on your hips throughout the movement",
			"Bend your knees and jump as high as possible",
			"Land softly with bent knees",
			"Perform 3 attempts with 30 seconds rest between each",
		},
		Tips: []string{
			"Warm up with light jumping before recording",
			"Make sure the camera captures your full body",
			"Jump straight up, avoid forward movement",
		},
	},
	TypeShuttleRun: {
		Title: "Shuttle Run Test",
		Icon:  "🏃‍♂️",
		Instructions: []string{
			"Set up two cones/markers 10 meters apart",
			"Position camera to capture the entire running distance",
			"Start at one cone, sprint to the other cone",
			"Touch the cone and immediately sprint back",
			"Continue for 30 seconds at maximum speed",
			"Count the number of times you touch each cone",
		},
		Tips: []string{
			"Use proper running technique with arm drive",
			"Stay low when changing direction",
			"Maintain maximum effort throughout",
		},
	},
	TypeSitUps: {
		Title: "Sit-ups Test",
		Icon:  "💪",
		Instructions: []string{
			"Lie on your back with knees bent at 90 degrees",
			"Position camera to show your side profile",
			"Cross your arms over your chest",
			"Curl up until your elbows touch your knees",
			"Lower back down until shoulder blades touch the ground",
			"Perform as many as possible in 60 seconds",
		},
		Tips: []string{
			"Keep your feet flat on the ground",
			"Use your core muscles, not momentum",
			"Maintain steady breathing throughout",
		},
	},
	TypeEnduranceRun: {
		Title: "Endurance Run Test",
		Icon:  "🏃‍♀️",
		Instructions: []string{
			"Find a safe outdoor running area or use a treadmill",
			"Position camera to capture your starting position",
			"Run at a steady, sustainable pace for 12 minutes",
			"Try to maintain the same speed throughout",
			"Measure the total distance covered",
			"Cool down with light walking after completion",
		},
		Tips: []string{
			"Start at a comfortable pace you can maintain",
			"Focus on consistent breathing",
			"Track your distance using a fitness app",
		},
	},
}

// Lookup returns the catalogue entry for t.
func Lookup(t Type) (Test, bool) {
	test, ok := tests[t]
	if !ok {
		return Test{}, false
	}
	test.ID = t
	test.DurationSeconds = int(t.CaptureDuration().Seconds())
	test.RequiresFaceVerification = t.RequiresFaceVerification()
	return test, true
}

// Catalogue lists all tests in display order.
func Catalogue() []Test {
	list := make([]Test, 0, len(All))
	for _, t := range All {
		test, _ := Lookup(t)
		list = append(list, test)
	}
	return list
}
