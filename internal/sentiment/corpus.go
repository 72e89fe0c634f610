package sentiment

// Corpus is the fixed training set, mixed Indonesian and English.
func Corpus() []Example {
	return []Example{
		{"saya merasa jauh lebih baik hari ini", Positive},
		{"sudah sembuh dan sehat kembali", Positive},
		{"terima kasih dokter sangat membantu", Positive},
		{"obatnya manjur demam sudah turun", Positive},
		{"senang sekali badan terasa segar", Positive},
		{"i feel much better today", Positive},
		{"thank you the advice really helped", Positive},
		{"great recovery feeling healthy", Positive},

		{"sakit sekali tidak tahan lagi", Negative},
		{"semakin parah dan sangat khawatir", Negative},
		{"saya takut dan cemas dengan kondisi ini", Negative},
		{"obatnya tidak membantu malah memburuk", Negative},
		{"badan lemas dan sangat menderita", Negative},
		{"i feel terrible and worse every day", Negative},
		{"the pain is unbearable and scary", Negative},
		{"very worried it is getting worse", Negative},

		{"saya ingin bertanya tentang jadwal dokter", Neutral},
		{"berapa dosis obat yang dianjurkan", Neutral},
		{"keluhan dimulai sejak dua hari lalu", Neutral},
		{"saya berumur tiga puluh tahun", Neutral},
		{"what is the recommended dosage", Neutral},
		{"the symptoms started two days ago", Neutral},
		{"i would like to book an appointment", Neutral},
	}
}
