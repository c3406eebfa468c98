package rank

import "fmt"

var firstNames = []string{
	"Aarav", "Vivaan", "Aditya", "Arjun", "Ishaan", "Kabir", "Rohan", "Siddharth",
	"Nikhil", "Varun", "Aadhya", "Diya", "Saanvi", "Ananya", "Riya", "Kavya",
	"Isha", "Sneha", "Priya", "Neha", "Tanya", "Meera", "Zara", "Pooja",
}

var lastNames = []string{
	"Sharma", "Verma", "Iyer", "Reddy", "Patel", "Gupta", "Nair", "Singh",
	"Das", "Kulkarni", "Mehta", "Joshi",
}

// DefaultCohort builds size synthetic profiles. The result is the same for
// every call with the same size.
func DefaultCohort(size int) []Profile {
	out := make([]Profile, 0, size)
	for i := 0; i < size; i++ {
		rng := seeded(fmt.Sprintf("cohort_%d", i))
		name := firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))]
		out = append(out, Profile{ID: fmt.Sprintf("ghost-%03d", i), Name: name})
	}
	return out
}
